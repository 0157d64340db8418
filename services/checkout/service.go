package checkout

import (
	"context"
	"fmt"

	"github.com/pawshop/storefront/lib/myerrors"
	"github.com/pawshop/storefront/lib/mylog"
	"github.com/pawshop/storefront/lib/mypublisher"
	"github.com/pawshop/storefront/lib/mystore"
	"github.com/pawshop/storefront/lib/mytime"
	"github.com/pawshop/storefront/lib/myuuid"
	"github.com/pawshop/storefront/services/cart/cartmodel"
	"github.com/pawshop/storefront/services/checkout/checkoutapi"
	"github.com/pawshop/storefront/services/checkout/checkoutevents"
)

const defaultCurrency = "EUR"

type service struct {
	sessionStore mystore.Store[CheckoutSession]
	handoffStore mystore.Store[HandoffRecord]
	cartStore    mystore.Store[cartmodel.Cart]
	gateway      PaymentGateway
	orderPlacer  OrderPlacer
	nower        mytime.Nower
	uuider       myuuid.UUIDer
	publisher    mypublisher.Publisher
	logger       mylog.Logger
}

// Use dependency injection to isolate the infrastructure and ease testing
func newService(sessionStore mystore.Store[CheckoutSession], handoffStore mystore.Store[HandoffRecord], cartStore mystore.Store[cartmodel.Cart],
	gateway PaymentGateway, orderPlacer OrderPlacer, nower mytime.Nower, uuider myuuid.UUIDer, publisher mypublisher.Publisher, logger mylog.Logger) *service {
	return &service{
		sessionStore: sessionStore,
		handoffStore: handoffStore,
		cartStore:    cartStore,
		gateway:      gateway,
		orderPlacer:  orderPlacer,
		nower:        nower,
		uuider:       uuider,
		publisher:    publisher,
		logger:       logger,
	}
}

// startCheckout snapshots the cart at this very moment (copy-on-read) and
// creates a fresh session in the review state. An abandoned earlier session
// is simply superseded; it needs no cleanup call towards the gateway.
func (s *service) startCheckout(c context.Context, shopperUID string) (CheckoutSession, error) {
	now := s.nower.Now()

	cart, found, err := s.cartStore.Get(c, shopperUID)
	if err != nil {
		return CheckoutSession{}, myerrors.NewInternalError(fmt.Errorf("error fetching cart of shopper %s: %s", shopperUID, err))
	}
	if !found || cart.IsEmpty() {
		return CheckoutSession{}, myerrors.NewInvalidInputError(fmt.Errorf("cannot start checkout with an empty cart"))
	}

	session := CheckoutSession{
		SessionUID:    s.uuider.Create(),
		ShopperUID:    shopperUID,
		State:         StateReview,
		Lines:         cart.Snapshot(),
		AmountInCents: cart.Total(),
		Currency:      defaultCurrency,
		CreatedAt:     now,
	}

	err = s.sessionStore.RunInTransaction(c, func(c context.Context) error {
		err := s.sessionStore.Put(c, session.SessionUID, session)
		if err != nil {
			return myerrors.NewInternalError(fmt.Errorf("error storing session: %s", err))
		}

		err = s.publisher.Publish(c, checkoutevents.TopicName, checkoutevents.CheckoutStarted{
			SessionUID:    session.SessionUID,
			ShopperUID:    shopperUID,
			AmountInCents: session.AmountInCents,
			Currency:      session.Currency,
			ItemCount:     cart.ItemCount(),
		})
		if err != nil {
			return myerrors.NewInternalError(fmt.Errorf("error publishing event: %s", err))
		}

		return nil
	})
	if err != nil {
		return CheckoutSession{}, err
	}

	s.logger.Log(c, session.SessionUID, mylog.SeverityInfo, "Started checkout %s for shopper %s (%d cents)", session.SessionUID, shopperUID, session.AmountInCents)

	return session, nil
}

func (s *service) getSession(c context.Context, sessionUID string) (CheckoutSession, error) {
	session, found, err := s.sessionStore.Get(c, sessionUID)
	if err != nil {
		return CheckoutSession{}, myerrors.NewInternalError(fmt.Errorf("error fetching session %s: %s", sessionUID, err))
	}
	if !found {
		return CheckoutSession{}, myerrors.NewNotFoundError(fmt.Errorf("session with uid %s not found", sessionUID))
	}

	return session, nil
}

// submitEmail guards the review -> address transition. An invalid email
// keeps the session in review untouched; the error surfaces as a
// field-level message only.
func (s *service) submitEmail(c context.Context, sessionUID string, form checkoutapi.EmailForm) (CheckoutSession, error) {
	var session CheckoutSession

	err := s.sessionStore.RunInTransaction(c, func(c context.Context) error {
		var err error
		session, err = s.getSession(c, sessionUID)
		if err != nil {
			return err
		}
		if session.State != StateReview {
			return myerrors.NewInvalidInputError(fmt.Errorf("session %s is not in review", sessionUID))
		}

		err = form.Validate()
		if err != nil {
			return err
		}

		session.CustomerEmail = form.CustomerEmail
		err = session.Transition(StateAddressCapture)
		if err != nil {
			return err
		}

		return s.save(c, &session)
	})
	if err != nil {
		return session, err
	}

	return session, nil
}

// submitAddress validates the address, mints the order-id and creates the
// payment intent at the gateway. The session is marked busy for the
// duration of the network call so a double-submit cannot create two
// intents for one checkout attempt.
func (s *service) submitAddress(c context.Context, sessionUID string, address checkoutapi.Address) (CheckoutSession, error) {
	var session CheckoutSession

	err := s.sessionStore.RunInTransaction(c, func(c context.Context) error {
		var err error
		session, err = s.getSession(c, sessionUID)
		if err != nil {
			return err
		}
		if session.State != StateAddressCapture {
			return myerrors.NewInvalidInputError(fmt.Errorf("session %s is not capturing an address", sessionUID))
		}
		if session.Busy {
			return myerrors.NewConflictError(fmt.Errorf("session %s has a submission in flight", sessionUID))
		}

		err = address.Validate()
		if err != nil {
			return err
		}

		session.Address = address
		session.OrderID = s.mintOrderID()
		session.Busy = true
		err = session.Transition(StateIntentPending)
		if err != nil {
			return err
		}

		return s.save(c, &session)
	})
	if err != nil {
		return session, err
	}

	// The suspension point: no lock is held while the gateway is consulted.
	resp, intentErr := s.gateway.CreateIntent(c, IntentRequest{
		OrderID:       session.OrderID,
		CustomerEmail: session.CustomerEmail,
		AmountInCents: session.AmountInCents,
		Currency:      session.Currency,
		Lines:         session.Lines,
	})

	err = s.sessionStore.RunInTransaction(c, func(c context.Context) error {
		var err error
		session, err = s.getSession(c, sessionUID)
		if err != nil {
			return err
		}
		session.Busy = false

		if intentErr != nil {
			s.failSession(c, &session, StageIntentCreation, fmt.Errorf("error creating payment intent: %s", intentErr))
			return s.save(c, &session)
		}
		if resp.ClientSecret == "" {
			// proceeding without a secret would leave the confirmation step unable to charge
			s.failSession(c, &session, StageIntentCreation, fmt.Errorf("gateway returned no client secret"))
			return s.save(c, &session)
		}

		session.ClientSecret = resp.ClientSecret
		err = session.Transition(StateAwaitingConfirmation)
		if err != nil {
			return err
		}

		return s.save(c, &session)
	})
	if err != nil {
		return session, err
	}

	if session.State == StateFailed {
		return session, myerrors.NewUnavailableError(fmt.Errorf("%s", session.LastError))
	}

	s.logger.Log(c, sessionUID, mylog.SeverityInfo, "Payment intent created for session %s, order %s", sessionUID, session.OrderID)

	return session, nil
}

// confirmPayment drives the awaiting_confirmation guard. Only a succeeded
// payment advances the machine; requires-action, declined and transport
// errors keep the session (and the client secret) in place for a fresh
// shopper-initiated attempt.
func (s *service) confirmPayment(c context.Context, sessionUID string, cardToken string) (CheckoutSession, PaymentResult, error) {
	var session CheckoutSession

	err := s.sessionStore.RunInTransaction(c, func(c context.Context) error {
		var err error
		session, err = s.getSession(c, sessionUID)
		if err != nil {
			return err
		}
		if session.State != StateAwaitingConfirmation {
			return myerrors.NewInvalidInputError(fmt.Errorf("session %s is not awaiting confirmation", sessionUID))
		}
		if session.Busy {
			return myerrors.NewConflictError(fmt.Errorf("session %s has a confirmation in flight", sessionUID))
		}

		session.Busy = true

		return s.save(c, &session)
	})
	if err != nil {
		return session, nil, err
	}

	result, confirmErr := s.gateway.Confirm(c, session.ClientSecret, cardToken)

	if confirmErr != nil {
		// non-classifiable gateway response: terminal
		err = s.sessionStore.RunInTransaction(c, func(c context.Context) error {
			var err error
			session, err = s.getSession(c, sessionUID)
			if err != nil {
				return err
			}
			session.Busy = false
			s.failSession(c, &session, StageConfirmation, fmt.Errorf("malformed gateway response: %s", confirmErr))

			return s.save(c, &session)
		})
		if err != nil {
			return session, nil, err
		}

		return session, nil, myerrors.NewInternalError(fmt.Errorf("%s", session.LastError))
	}

	switch outcome := result.(type) {
	case PaymentSucceeded:
		session, err = s.completeAfterPayment(c, sessionUID, outcome)
		return session, result, err
	case PaymentRequiresAction:
		session, err = s.stayAwaitingConfirmation(c, sessionUID, "")
		return session, result, err
	case PaymentDeclined:
		s.logger.Log(c, sessionUID, mylog.SeverityInfo, "Payment declined for session %s: %s", sessionUID, outcome.ReasonCode)
		session, err = s.stayAwaitingConfirmation(c, sessionUID, fmt.Sprintf("payment declined (%s): %s", outcome.ReasonCode, outcome.Message))
		return session, result, err
	case PaymentTransportError:
		s.logger.Log(c, sessionUID, mylog.SeverityWarn, "Payment transport error for session %s: %s", sessionUID, outcome.Message)
		session, err = s.stayAwaitingConfirmation(c, sessionUID, fmt.Sprintf("payment could not be processed: %s", outcome.Message))
		return session, result, err
	default:
		return session, nil, myerrors.NewInternalError(fmt.Errorf("unknown payment result %T", result))
	}
}

// stayAwaitingConfirmation records a retry-in-place outcome: the session
// keeps its state, address and client secret so the shopper can resubmit
// with different card data.
func (s *service) stayAwaitingConfirmation(c context.Context, sessionUID string, message string) (CheckoutSession, error) {
	var session CheckoutSession

	err := s.sessionStore.RunInTransaction(c, func(c context.Context) error {
		var err error
		session, err = s.getSession(c, sessionUID)
		if err != nil {
			return err
		}

		session.Busy = false
		session.LastError = message

		return s.save(c, &session)
	})
	if err != nil {
		return session, err
	}

	return session, nil
}

// completeAfterPayment finishes the checkout once money has moved. From
// here on a failure to create the order record must never be framed as a
// payment failure: the session still terminates as succeeded, tagged
// payment_succeeded_order_pending, and the order adapter takes over
// recovery.
func (s *service) completeAfterPayment(c context.Context, sessionUID string, payment PaymentSucceeded) (CheckoutSession, error) {
	var session CheckoutSession

	err := s.sessionStore.RunInTransaction(c, func(c context.Context) error {
		var err error
		session, err = s.getSession(c, sessionUID)
		if err != nil {
			return err
		}

		session.GatewayPaymentID = payment.GatewayPaymentID
		err = session.Transition(StateOrderPending)
		if err != nil {
			return err
		}

		return s.save(c, &session)
	})
	if err != nil {
		return session, err
	}

	orderErr := s.orderPlacer.PlaceOrder(c, OrderRequest{
		OrderID:          session.OrderID,
		GatewayPaymentID: session.GatewayPaymentID,
		CustomerEmail:    session.CustomerEmail,
		AmountInCents:    session.AmountInCents,
		Currency:         session.Currency,
		Lines:            session.Lines,
		Address:          session.Address,
	})

	err = s.sessionStore.RunInTransaction(c, func(c context.Context) error {
		var err error
		session, err = s.getSession(c, sessionUID)
		if err != nil {
			return err
		}

		session.Busy = false
		message := "Thank you, your order has been placed."
		if orderErr != nil {
			s.logger.Log(c, sessionUID, mylog.SeverityError, "Order creation failed after successful payment %s: %s", session.GatewayPaymentID, orderErr)
			session.OrderStatus = OrderStatusPaymentPendingOrder
			message = fmt.Sprintf("Your payment was received. We could not register your order yet; contact support with payment id %s.", session.GatewayPaymentID)
		} else {
			session.OrderStatus = OrderStatusCreated
		}

		err = session.Transition(StateSucceeded)
		if err != nil {
			return err
		}

		err = s.handoffStore.Put(c, session.SessionUID, HandoffRecord{
			SessionUID:  session.SessionUID,
			Success:     true,
			OrderID:     session.OrderID,
			OrderStatus: session.OrderStatus,
			PaymentID:   session.GatewayPaymentID,
			Message:     message,
			CreatedAt:   s.nower.Now(),
		})
		if err != nil {
			return myerrors.NewInternalError(fmt.Errorf("error storing handoff record: %s", err))
		}

		err = s.publisher.Publish(c, checkoutevents.TopicName, checkoutevents.CheckoutCompleted{
			SessionUID:  session.SessionUID,
			ShopperUID:  session.ShopperUID,
			OrderID:     session.OrderID,
			OrderStatus: session.OrderStatus,
			Success:     true,
		})
		if err != nil {
			return myerrors.NewInternalError(fmt.Errorf("error publishing event: %s", err))
		}

		return s.save(c, &session)
	})
	if err != nil {
		return session, err
	}

	// cart destruction on successful completion, best effort
	err = s.cartStore.Delete(c, session.ShopperUID)
	if err != nil {
		s.logger.Log(c, sessionUID, mylog.SeverityWarn, "Error clearing cart of shopper %s: %s", session.ShopperUID, err)
	}

	s.logger.Log(c, sessionUID, mylog.SeverityInfo, "Checkout %s completed: order %s (%s)", sessionUID, session.OrderID, session.OrderStatus)

	return session, nil
}

// back performs the explicit backwards transitions. A session failed
// during intent creation may return to the address step; any other failed
// session needs a fresh checkout.
func (s *service) back(c context.Context, sessionUID string) (CheckoutSession, error) {
	var session CheckoutSession

	err := s.sessionStore.RunInTransaction(c, func(c context.Context) error {
		var err error
		session, err = s.getSession(c, sessionUID)
		if err != nil {
			return err
		}
		if session.Busy {
			return myerrors.NewConflictError(fmt.Errorf("session %s has a submission in flight", sessionUID))
		}

		switch {
		case session.State == StateAddressCapture:
			err = session.Transition(StateReview)
		case session.State == StateAwaitingConfirmation:
			err = session.Transition(StateAddressCapture)
		case session.State == StateFailed && session.Stage == StageIntentCreation:
			session.LastError = ""
			err = session.Transition(StateAddressCapture)
		default:
			return myerrors.NewInvalidInputError(fmt.Errorf("cannot go back from state %s", session.State))
		}
		if err != nil {
			return err
		}

		return s.save(c, &session)
	})
	if err != nil {
		return session, err
	}

	return session, nil
}

// collectResult hands out the terminal outcome exactly once; the record is
// destroyed on first read.
func (s *service) collectResult(c context.Context, sessionUID string) (HandoffRecord, error) {
	var record HandoffRecord

	err := s.handoffStore.RunInTransaction(c, func(c context.Context) error {
		var found bool
		var err error
		record, found, err = s.handoffStore.Get(c, sessionUID)
		if err != nil {
			return myerrors.NewInternalError(fmt.Errorf("error fetching result of session %s: %s", sessionUID, err))
		}
		if !found {
			return myerrors.NewNotFoundError(fmt.Errorf("no result for session %s", sessionUID))
		}

		return s.handoffStore.Delete(c, sessionUID)
	})
	if err != nil {
		return HandoffRecord{}, err
	}

	return record, nil
}

// failSession is the one funnel into the terminal failed state: it stores
// the failure handoff record and emits the completion event before the
// session is saved by the caller.
func (s *service) failSession(c context.Context, session *CheckoutSession, stage Stage, failure error) {
	session.Fail(stage, failure)

	err := s.handoffStore.Put(c, session.SessionUID, HandoffRecord{
		SessionUID: session.SessionUID,
		Success:    false,
		OrderID:    session.OrderID,
		Message:    failure.Error(),
		CreatedAt:  s.nower.Now(),
	})
	if err != nil {
		s.logger.Log(c, session.SessionUID, mylog.SeverityWarn, "Error storing failure handoff record: %s", err)
	}

	err = s.publisher.Publish(c, checkoutevents.TopicName, checkoutevents.CheckoutCompleted{
		SessionUID: session.SessionUID,
		ShopperUID: session.ShopperUID,
		OrderID:    session.OrderID,
		Success:    false,
	})
	if err != nil {
		s.logger.Log(c, session.SessionUID, mylog.SeverityWarn, "Error publishing completion event: %s", err)
	}

	s.logger.Log(c, session.SessionUID, mylog.SeverityWarn, "Checkout %s failed in stage %s: %s", session.SessionUID, stage, failure)
}

func (s *service) mintOrderID() string {
	// human-inspectable, uniqueness by timestamp plus short random suffix;
	// the order service deduplicates by this id
	return fmt.Sprintf("%d-%.8s", s.nower.Now().UnixMilli(), s.uuider.Create())
}

func (s *service) save(c context.Context, session *CheckoutSession) error {
	now := s.nower.Now()
	session.LastModified = &now

	err := s.sessionStore.Put(c, session.SessionUID, *session)
	if err != nil {
		return myerrors.NewInternalError(fmt.Errorf("error storing session %s: %s", session.SessionUID, err))
	}

	return nil
}
