package checkout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/pawshop/storefront/lib/mypublisher"
	"github.com/pawshop/storefront/lib/mystore"
	"github.com/pawshop/storefront/lib/mytime"
	"github.com/pawshop/storefront/lib/myuuid"
	"github.com/pawshop/storefront/services/cart/cartmodel"
	"github.com/pawshop/storefront/services/checkout/checkoutevents"
)

const (
	sessionUID = "sess-abc-123"
	shopperUID = "shopper-1"
)

func TestCheckoutService(t *testing.T) {

	t.Run("Start with empty cart is rejected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// given: no cart stored at all
		f.nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()

		// when
		request, _ := http.NewRequest(http.MethodPost, "/api/checkout/shopper-1/start", nil)
		response := httptest.NewRecorder()
		f.router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 400, response.Code)
		assert.Contains(t, response.Body.String(), "empty cart")
	})

	t.Run("Start snapshots the cart", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// given
		f.nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		f.uuider.EXPECT().Create().Return(sessionUID).AnyTimes()
		f.cartStore.Put(f.ctx, shopperUID, exampleCart())
		f.publisher.EXPECT().Publish(gomock.Any(), checkoutevents.TopicName, checkoutevents.CheckoutStarted{
			SessionUID:    sessionUID,
			ShopperUID:    shopperUID,
			AmountInCents: 4700,
			Currency:      "EUR",
			ItemCount:     3,
		}).Return(nil)

		// when
		request, _ := http.NewRequest(http.MethodPost, "/api/checkout/shopper-1/start", nil)
		response := httptest.NewRecorder()
		f.router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 200, response.Code)
		got := response.Body.String()
		assert.Contains(t, got, `"state": "review"`)
		assert.Contains(t, got, `"amountInCents": 4700`)

		// later cart mutations do not touch the session snapshot
		cart, _, _ := f.cartStore.Get(f.ctx, shopperUID)
		cart.AddLine(cartmodel.Line{ProductID: "ball-l", UnitPrice: 250, Quantity: 5})
		f.cartStore.Put(f.ctx, shopperUID, cart)
		session, exists, _ := f.sessionStore.Get(f.ctx, sessionUID)
		assert.True(t, exists)
		assert.Equal(t, int64(4700), session.AmountInCents)
		assert.Len(t, session.Lines, 2)
	})

	t.Run("Invalid email keeps session in review", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// given
		f.nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		f.sessionStore.Put(f.ctx, sessionUID, sessionInState(StateReview))

		// when
		response := f.putForm(t, "/api/checkout/session/"+sessionUID+"/email", "customerEmail=not-an-email")

		// then
		assert.Equal(t, 400, response.Code)
		session, _, _ := f.sessionStore.Get(f.ctx, sessionUID)
		assert.Equal(t, StateReview, session.State)
		assert.Equal(t, "rex@example.com", session.CustomerEmail)
	})

	t.Run("Valid email moves session to address capture", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// given
		f.nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		f.sessionStore.Put(f.ctx, sessionUID, sessionInState(StateReview))

		// when
		response := f.putForm(t, "/api/checkout/session/"+sessionUID+"/email", "customerEmail=rex@example.com")

		// then
		assert.Equal(t, 200, response.Code)
		session, _, _ := f.sessionStore.Get(f.ctx, sessionUID)
		assert.Equal(t, StateAddressCapture, session.State)
		assert.Equal(t, "rex@example.com", session.CustomerEmail)
	})

	t.Run("Pickup address needs no street", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// given
		f.nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		f.uuider.EXPECT().Create().Return("abcdef1234567890").AnyTimes()
		f.sessionStore.Put(f.ctx, sessionUID, sessionInState(StateAddressCapture))
		f.gateway.EXPECT().CreateIntent(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, req IntentRequest) (IntentResponse, error) {
				assert.Equal(t, int64(4700), req.AmountInCents)
				assert.Equal(t, "EUR", req.Currency)
				assert.Equal(t, "rex@example.com", req.CustomerEmail)
				return IntentResponse{ClientSecret: "cs_secret_1"}, nil
			})

		// when
		response := f.putForm(t, "/api/checkout/session/"+sessionUID+"/address", "fullName=Rex&shippingOption=pickup")

		// then
		assert.Equal(t, 200, response.Code)
		session, _, _ := f.sessionStore.Get(f.ctx, sessionUID)
		assert.Equal(t, StateAwaitingConfirmation, session.State)
		assert.Equal(t, "cs_secret_1", session.ClientSecret)
		assert.NotEmpty(t, session.OrderID)
		assert.False(t, session.Busy)
	})

	t.Run("Ship address without postal code is rejected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// given
		f.nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		f.sessionStore.Put(f.ctx, sessionUID, sessionInState(StateAddressCapture))

		// when
		response := f.putForm(t, "/api/checkout/session/"+sessionUID+"/address",
			"fullName=Rex&shippingOption=ship&addressLine1=Main+1&city=Dogtown")

		// then
		assert.Equal(t, 400, response.Code)
		session, _, _ := f.sessionStore.Get(f.ctx, sessionUID)
		assert.Equal(t, StateAddressCapture, session.State)
	})

	t.Run("Intent creation failure is recoverable via back", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// given
		f.nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		f.uuider.EXPECT().Create().Return("abcdef1234567890").AnyTimes()
		f.sessionStore.Put(f.ctx, sessionUID, sessionInState(StateAddressCapture))
		f.gateway.EXPECT().CreateIntent(gomock.Any(), gomock.Any()).Return(IntentResponse{}, errors.New("gateway down"))
		f.publisher.EXPECT().Publish(gomock.Any(), checkoutevents.TopicName, gomock.Any()).Return(nil)

		// when
		response := f.putForm(t, "/api/checkout/session/"+sessionUID+"/address", "fullName=Rex&shippingOption=pickup")

		// then
		assert.Equal(t, 503, response.Code)
		session, _, _ := f.sessionStore.Get(f.ctx, sessionUID)
		assert.Equal(t, StateFailed, session.State)
		assert.Equal(t, StageIntentCreation, session.Stage)

		// and: back returns to the address step with the error cleared
		request, _ := http.NewRequest(http.MethodPut, "/api/checkout/session/"+sessionUID+"/back", nil)
		backResponse := httptest.NewRecorder()
		f.router.ServeHTTP(backResponse, request)
		assert.Equal(t, 200, backResponse.Code)
		session, _, _ = f.sessionStore.Get(f.ctx, sessionUID)
		assert.Equal(t, StateAddressCapture, session.State)
		assert.Empty(t, session.LastError)
	})

	t.Run("Declined payment allows retry in place", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// given
		f.nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		awaiting := sessionInState(StateAwaitingConfirmation)
		awaiting.ClientSecret = "cs_secret_1"
		f.sessionStore.Put(f.ctx, sessionUID, awaiting)
		f.gateway.EXPECT().Confirm(gomock.Any(), "cs_secret_1", "tok_declined").
			Return(PaymentDeclined{ReasonCode: "card_declined", Message: "insufficient funds"}, nil)

		// when
		response := f.putJSON(t, "/api/checkout/session/"+sessionUID+"/confirm", `{"cardToken":"tok_declined"}`)

		// then
		assert.Equal(t, 200, response.Code)
		assert.Contains(t, response.Body.String(), "insufficient funds")
		session, _, _ := f.sessionStore.Get(f.ctx, sessionUID)
		assert.Equal(t, StateAwaitingConfirmation, session.State)
		assert.Equal(t, "cs_secret_1", session.ClientSecret)
		assert.False(t, session.Busy)
	})

	t.Run("Requires action is reported without state change", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// given
		f.nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		awaiting := sessionInState(StateAwaitingConfirmation)
		awaiting.ClientSecret = "cs_secret_1"
		f.sessionStore.Put(f.ctx, sessionUID, awaiting)
		f.gateway.EXPECT().Confirm(gomock.Any(), "cs_secret_1", "tok_3ds").
			Return(PaymentRequiresAction{ActionToken: "action-token-1"}, nil)

		// when
		response := f.putJSON(t, "/api/checkout/session/"+sessionUID+"/confirm", `{"cardToken":"tok_3ds"}`)

		// then
		assert.Equal(t, 200, response.Code)
		got := response.Body.String()
		assert.Contains(t, got, `"requiresAction": true`)
		assert.Contains(t, got, "action-token-1")
		session, _, _ := f.sessionStore.Get(f.ctx, sessionUID)
		assert.Equal(t, StateAwaitingConfirmation, session.State)
	})

	t.Run("Successful confirmation completes the checkout", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// given
		f.nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		f.cartStore.Put(f.ctx, shopperUID, exampleCart())
		awaiting := sessionInState(StateAwaitingConfirmation)
		awaiting.ClientSecret = "cs_secret_1"
		awaiting.OrderID = "order-1"
		f.sessionStore.Put(f.ctx, sessionUID, awaiting)
		f.gateway.EXPECT().Confirm(gomock.Any(), "cs_secret_1", "tok_visa").
			Return(PaymentSucceeded{GatewayPaymentID: "pay-1", AmountInCents: 4700, Currency: "EUR"}, nil)
		f.orderPlacer.EXPECT().PlaceOrder(gomock.Any(), gomock.Any()).Return(nil)
		f.publisher.EXPECT().Publish(gomock.Any(), checkoutevents.TopicName, checkoutevents.CheckoutCompleted{
			SessionUID:  sessionUID,
			ShopperUID:  shopperUID,
			OrderID:     "order-1",
			OrderStatus: OrderStatusCreated,
			Success:     true,
		}).Return(nil)

		// when
		response := f.putJSON(t, "/api/checkout/session/"+sessionUID+"/confirm", `{"cardToken":"tok_visa"}`)

		// then
		assert.Equal(t, 200, response.Code)
		session, _, _ := f.sessionStore.Get(f.ctx, sessionUID)
		assert.Equal(t, StateSucceeded, session.State)
		assert.Equal(t, OrderStatusCreated, session.OrderStatus)

		// cart is gone
		_, exists, _ := f.cartStore.Get(f.ctx, shopperUID)
		assert.False(t, exists)
	})

	t.Run("Order failure after payment still succeeds", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// given
		f.nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		f.cartStore.Put(f.ctx, shopperUID, exampleCart())
		awaiting := sessionInState(StateAwaitingConfirmation)
		awaiting.ClientSecret = "cs_secret_1"
		awaiting.OrderID = "order-1"
		f.sessionStore.Put(f.ctx, sessionUID, awaiting)
		f.gateway.EXPECT().Confirm(gomock.Any(), "cs_secret_1", "tok_visa").
			Return(PaymentSucceeded{GatewayPaymentID: "pay-1"}, nil)
		f.orderPlacer.EXPECT().PlaceOrder(gomock.Any(), gomock.Any()).Return(errors.New("order service down"))
		f.publisher.EXPECT().Publish(gomock.Any(), checkoutevents.TopicName, gomock.Any()).Return(nil)

		// when
		response := f.putJSON(t, "/api/checkout/session/"+sessionUID+"/confirm", `{"cardToken":"tok_visa"}`)

		// then: never framed as a payment failure
		assert.Equal(t, 200, response.Code)
		session, _, _ := f.sessionStore.Get(f.ctx, sessionUID)
		assert.Equal(t, StateSucceeded, session.State)
		assert.Equal(t, OrderStatusPaymentPendingOrder, session.OrderStatus)

		// cart is still cleared: the shopper paid
		_, exists, _ := f.cartStore.Get(f.ctx, shopperUID)
		assert.False(t, exists)

		// and the handoff record points the shopper to support
		record, exists, _ := f.handoffStore.Get(f.ctx, sessionUID)
		assert.True(t, exists)
		assert.True(t, record.Success)
		assert.Contains(t, record.Message, "pay-1")
	})

	t.Run("Busy session rejects concurrent confirm", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// given
		f.nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		busy := sessionInState(StateAwaitingConfirmation)
		busy.Busy = true
		f.sessionStore.Put(f.ctx, sessionUID, busy)

		// when
		response := f.putJSON(t, "/api/checkout/session/"+sessionUID+"/confirm", `{"cardToken":"tok_visa"}`)

		// then
		assert.Equal(t, 409, response.Code)
	})

	t.Run("Result is handed out exactly once", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// given
		f.handoffStore.Put(f.ctx, sessionUID, HandoffRecord{
			SessionUID:  sessionUID,
			Success:     true,
			OrderID:     "order-1",
			OrderStatus: OrderStatusCreated,
			Message:     "Thank you, your order has been placed.",
			CreatedAt:   mytime.ExampleTime,
		})

		// when
		request, _ := http.NewRequest(http.MethodGet, "/api/checkout/session/"+sessionUID+"/result", nil)
		response := httptest.NewRecorder()
		f.router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 200, response.Code)
		assert.Contains(t, response.Body.String(), "order-1")

		// second read finds nothing
		again := httptest.NewRecorder()
		request, _ = http.NewRequest(http.MethodGet, "/api/checkout/session/"+sessionUID+"/result", nil)
		f.router.ServeHTTP(again, request)
		assert.Equal(t, 404, again.Code)
	})

	t.Run("Unknown session is not found", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		f := setup(t, ctrl)

		// when
		request, _ := http.NewRequest(http.MethodGet, "/api/checkout/session/does-not-exist", nil)
		response := httptest.NewRecorder()
		f.router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 404, response.Code)
	})
}

func exampleCart() cartmodel.Cart {
	cart := cartmodel.New(shopperUID, mytime.ExampleTime)
	cart.AddLine(cartmodel.Line{ProductID: "dragon", Title: "Squeaky dragon", UnitPrice: 1500, Quantity: 1})
	cart.AddLine(cartmodel.Line{ProductID: "corncob", Title: "Corncob chew", UnitPrice: 1600, Quantity: 2})

	return cart
}

func sessionInState(state State) CheckoutSession {
	cart := exampleCart()

	return CheckoutSession{
		SessionUID:    sessionUID,
		ShopperUID:    shopperUID,
		State:         state,
		CustomerEmail: "rex@example.com",
		Lines:         cart.Snapshot(),
		AmountInCents: cart.Total(),
		Currency:      "EUR",
		CreatedAt:     mytime.ExampleTime,
	}
}

type fixture struct {
	ctx          context.Context
	router       *mux.Router
	sessionStore mystore.Store[CheckoutSession]
	handoffStore mystore.Store[HandoffRecord]
	cartStore    mystore.Store[cartmodel.Cart]
	gateway      *MockPaymentGateway
	orderPlacer  *MockOrderPlacer
	nower        *mytime.MockNower
	uuider       *myuuid.MockUUIDer
	publisher    *mypublisher.MockPublisher
}

func (f fixture) putForm(t *testing.T, url string, body string) *httptest.ResponseRecorder {
	request, err := http.NewRequest(http.MethodPut, url, strings.NewReader(body))
	assert.NoError(t, err)
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	response := httptest.NewRecorder()
	f.router.ServeHTTP(response, request)

	return response
}

func (f fixture) putJSON(t *testing.T, url string, body string) *httptest.ResponseRecorder {
	request, err := http.NewRequest(http.MethodPut, url, strings.NewReader(body))
	assert.NoError(t, err)
	response := httptest.NewRecorder()
	f.router.ServeHTTP(response, request)

	return response
}

func setup(t *testing.T, ctrl *gomock.Controller) fixture {
	c := context.TODO()
	sessionStore, _, _ := mystore.NewInMemoryStore[CheckoutSession](c)
	handoffStore, _, _ := mystore.NewInMemoryStore[HandoffRecord](c)
	cartStore, _, _ := mystore.NewInMemoryStore[cartmodel.Cart](c)
	gateway := NewMockPaymentGateway(ctrl)
	orderPlacer := NewMockOrderPlacer(ctrl)
	nower := mytime.NewMockNower(ctrl)
	uuider := myuuid.NewMockUUIDer(ctrl)
	publisher := mypublisher.NewMockPublisher(ctrl)

	publisher.EXPECT().CreateTopic(gomock.Any(), checkoutevents.TopicName).Return(nil)

	sut := NewService(sessionStore, handoffStore, cartStore, gateway, orderPlacer, nower, uuider, publisher)
	router := mux.NewRouter()
	err := sut.RegisterEndpoints(c, router)
	if err != nil {
		t.Fatalf("error registering endpoints: %s", err)
	}

	return fixture{
		ctx:          c,
		router:       router,
		sessionStore: sessionStore,
		handoffStore: handoffStore,
		cartStore:    cartStore,
		gateway:      gateway,
		orderPlacer:  orderPlacer,
		nower:        nower,
		uuider:       uuider,
		publisher:    publisher,
	}
}
