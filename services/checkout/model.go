package checkout

import (
	"fmt"
	"time"

	"github.com/pawshop/storefront/lib/myerrors"
	"github.com/pawshop/storefront/services/cart/cartmodel"
	"github.com/pawshop/storefront/services/checkout/checkoutapi"
)

type State string

const (
	StateReview               State = "review"
	StateAddressCapture       State = "address"
	StateIntentPending        State = "intent_pending"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateOrderPending         State = "order_pending"
	StateSucceeded            State = "succeeded"
	StateFailed               State = "failed"
)

// Stage records where a failure happened, so that the failure view and the
// back-navigation know what is recoverable.
type Stage string

const (
	StageEmailCapture   Stage = "email_capture"
	StageAddressCapture Stage = "address_capture"
	StageIntentCreation Stage = "intent_creation"
	StageConfirmation   Stage = "payment_confirmation"
	StageOrderCreation  Stage = "order_creation"
)

const (
	OrderStatusCreated = "created"

	// OrderStatusPaymentPendingOrder marks the partial-failure outcome:
	// payment has been captured but the order record could not be written.
	// The shopper must never be told their payment failed.
	OrderStatusPaymentPendingOrder = "payment_succeeded_order_pending"
)

// allowedTransitions is the single place that defines the shape of the
// checkout state machine. Everything else goes through Transition.
var allowedTransitions = map[State][]State{
	StateReview:               {StateAddressCapture, StateFailed},
	StateAddressCapture:       {StateIntentPending, StateReview, StateFailed},
	StateIntentPending:        {StateAwaitingConfirmation, StateFailed},
	StateAwaitingConfirmation: {StateOrderPending, StateAddressCapture, StateFailed},
	StateOrderPending:         {StateSucceeded, StateFailed},
	StateFailed:               {StateAddressCapture},
}

// CheckoutSession is the working state of a single checkout attempt. It
// carries a snapshot of the cart lines taken when checkout started, so a
// concurrent cart edit cannot alter an order that is being submitted.
type CheckoutSession struct {
	SessionUID       string
	ShopperUID       string
	State            State
	Stage            Stage
	CustomerEmail    string
	Address          checkoutapi.Address
	OrderID          string
	ClientSecret     string `datastore:",noindex"`
	GatewayPaymentID string
	OrderStatus      string
	LastError        string
	Busy             bool
	Lines            []cartmodel.Line `datastore:",noindex"`
	AmountInCents    int64
	Currency         string
	CreatedAt        time.Time
	LastModified     *time.Time
}

func (s *CheckoutSession) Transition(to State) error {
	for _, allowed := range allowedTransitions[s.State] {
		if allowed == to {
			s.State = to
			return nil
		}
	}

	return myerrors.NewInternalError(fmt.Errorf("illegal transition from %s to %s", s.State, to))
}

// Fail moves the session to the terminal failed state. LastError is always
// populated before the state flips, a failure is never silently swallowed.
func (s *CheckoutSession) Fail(stage Stage, err error) {
	s.Stage = stage
	s.LastError = err.Error()
	s.State = StateFailed
}

func (s CheckoutSession) IsTerminal() bool {
	return s.State == StateSucceeded || s.State == StateFailed
}

// HandoffRecord is the short-lived result slot for the confirmation (or
// failure) view. It is read exactly once and deleted on read.
type HandoffRecord struct {
	SessionUID  string
	Success     bool
	OrderID     string
	OrderStatus string
	PaymentID   string
	Message     string
	CreatedAt   time.Time
}

// PaymentResult is the normalized outcome of a payment confirmation,
// exactly one of the four variants below. Adapters never return a partially
// populated result.
type PaymentResult interface {
	paymentResult()
}

type PaymentSucceeded struct {
	GatewayPaymentID string
	AmountInCents    int64
	Currency         string
}

func (PaymentSucceeded) paymentResult() {}

type PaymentRequiresAction struct {
	ActionToken string
}

func (PaymentRequiresAction) paymentResult() {}

type PaymentDeclined struct {
	ReasonCode string
	Message    string
}

func (PaymentDeclined) paymentResult() {}

type PaymentTransportError struct {
	Message string
}

func (PaymentTransportError) paymentResult() {}
