package cart

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/pawshop/storefront/lib/myevents"
	"github.com/pawshop/storefront/lib/mypubsub"
	"github.com/pawshop/storefront/lib/mystore"
	"github.com/pawshop/storefront/lib/mytime"
	"github.com/pawshop/storefront/services/cart/cartmodel"
	"github.com/pawshop/storefront/services/checkout/checkoutevents"
)

func TestCartService(t *testing.T) {

	t.Run("Get empty cart", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		_, router, _, nower := setup(t, ctrl)

		// given
		nower.EXPECT().Now().Return(mytime.ExampleTime)

		// when
		request, err := http.NewRequest(http.MethodGet, "/api/cart/shopper-1", nil)
		assert.NoError(t, err)
		response := httptest.NewRecorder()
		router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 200, response.Code)
		got := response.Body.String()
		assert.Contains(t, got, `"itemCount": 0`)
		assert.Contains(t, got, `"totalPrice": 0`)
	})

	t.Run("Add line", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		ctx, router, storer, nower := setup(t, ctrl)

		// given
		nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()

		// when
		request, err := http.NewRequest(http.MethodPost, "/api/cart/shopper-1/items",
			strings.NewReader(`{"productId":"dragon","title":"Squeaky dragon","unitPrice":1500,"quantity":1}`))
		assert.NoError(t, err)
		response := httptest.NewRecorder()
		router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 200, response.Code)
		stored, exists, _ := storer.Get(ctx, "shopper-1")
		assert.True(t, exists)
		assert.Equal(t, 1, stored.ItemCount())
		assert.Equal(t, int64(1500), stored.Total())
	})

	t.Run("Add line twice accumulates", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		ctx, router, storer, nower := setup(t, ctrl)

		// given
		nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()

		// when
		for i := 0; i < 2; i++ {
			request, err := http.NewRequest(http.MethodPost, "/api/cart/shopper-1/items",
				strings.NewReader(`{"productId":"dragon","title":"Squeaky dragon","unitPrice":1500,"quantity":2}`))
			assert.NoError(t, err)
			response := httptest.NewRecorder()
			router.ServeHTTP(response, request)
			assert.Equal(t, 200, response.Code)
		}

		// then
		stored, _, _ := storer.Get(ctx, "shopper-1")
		assert.Len(t, stored.Lines, 1)
		assert.Equal(t, 4, stored.ItemCount())
	})

	t.Run("Add line without quantity defaults to one", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		ctx, router, storer, nower := setup(t, ctrl)

		// given
		nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()

		// when
		request, _ := http.NewRequest(http.MethodPost, "/api/cart/shopper-1/items",
			strings.NewReader(`{"productId":"dragon","unitPrice":1500}`))
		response := httptest.NewRecorder()
		router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 200, response.Code)
		stored, _, _ := storer.Get(ctx, "shopper-1")
		assert.Equal(t, 1, stored.ItemCount())
	})

	t.Run("Add line without product is rejected", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		_, router, _, _ := setup(t, ctrl)

		// when
		request, _ := http.NewRequest(http.MethodPost, "/api/cart/shopper-1/items",
			strings.NewReader(`{"unitPrice":1500}`))
		response := httptest.NewRecorder()
		router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 400, response.Code)
	})

	t.Run("Set quantity to zero removes line", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		ctx, router, storer, nower := setup(t, ctrl)

		// given
		nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		storer.Put(ctx, "shopper-1", cartWith(cartmodel.Line{ProductID: "x", UnitPrice: 999, Quantity: 2}))

		// when
		request, _ := http.NewRequest(http.MethodPut, "/api/cart/shopper-1/items/x",
			strings.NewReader(`{"quantity":0}`))
		response := httptest.NewRecorder()
		router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 200, response.Code)
		stored, _, _ := storer.Get(ctx, "shopper-1")
		assert.True(t, stored.IsEmpty())
	})

	t.Run("Remove absent line is no error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		_, router, _, nower := setup(t, ctrl)

		// given
		nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()

		// when
		request, _ := http.NewRequest(http.MethodDelete, "/api/cart/shopper-1/items/unknown", nil)
		response := httptest.NewRecorder()
		router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 200, response.Code)
	})

	t.Run("Checkout-completed event releases cart", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		ctx, router, storer, nower := setup(t, ctrl)

		// given
		nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		storer.Put(ctx, "shopper-1", cartWith(cartmodel.Line{ProductID: "dragon", UnitPrice: 1500, Quantity: 1}))

		// when: a pubsub push delivers the completion event
		request, _ := http.NewRequest(http.MethodPost, "/api/cart/event",
			strings.NewReader(completedEventPushRequest(t, "shopper-1")))
		response := httptest.NewRecorder()
		router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 200, response.Code)
		_, exists, _ := storer.Get(ctx, "shopper-1")
		assert.False(t, exists)
	})

	t.Run("Clear cart releases storage", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		ctx, router, storer, nower := setup(t, ctrl)

		// given
		nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		storer.Put(ctx, "shopper-1", cartWith(cartmodel.Line{ProductID: "dragon", UnitPrice: 1500, Quantity: 1}))

		// when
		request, _ := http.NewRequest(http.MethodDelete, "/api/cart/shopper-1", nil)
		response := httptest.NewRecorder()
		router.ServeHTTP(response, request)

		// then
		assert.Equal(t, 200, response.Code)
		_, exists, _ := storer.Get(ctx, "shopper-1")
		assert.False(t, exists)
	})
}

func completedEventPushRequest(t *testing.T, shopperUID string) string {
	payload, err := json.Marshal(checkoutevents.CheckoutCompleted{
		SessionUID: "sess-1",
		ShopperUID: shopperUID,
		OrderID:    "order-1",
		Success:    true,
	})
	assert.NoError(t, err)

	envelope, err := json.Marshal(myevents.EventEnvelope{
		UID:           "evt-1",
		Topic:         checkoutevents.TopicName,
		AggregateUID:  "sess-1",
		EventTypeName: checkoutevents.CheckoutCompleted{}.GetEventTypeName(),
		EventPayload:  string(payload),
	})
	assert.NoError(t, err)

	pushRequest, err := json.Marshal(myevents.PushRequest{
		Message: myevents.PushMessage{
			Data: envelope,
			ID:   "msg-1",
		},
		Subscription: "checkout-sub",
	})
	assert.NoError(t, err)

	return string(pushRequest)
}

func cartWith(lines ...cartmodel.Line) cartmodel.Cart {
	cart := cartmodel.New("shopper-1", mytime.ExampleTime)
	for _, line := range lines {
		cart.AddLine(line)
	}

	return cart
}

func setup(t *testing.T, ctrl *gomock.Controller) (context.Context, *mux.Router, mystore.Store[cartmodel.Cart], *mytime.MockNower) {
	c := context.TODO()
	storer, _, _ := mystore.NewInMemoryStore[cartmodel.Cart](c)
	nower := mytime.NewMockNower(ctrl)
	pubsub, _, _ := mypubsub.New(c)

	sut := NewService(storer, nower, pubsub)
	router := mux.NewRouter()
	err := sut.RegisterEndpoints(c, router)
	if err != nil {
		t.Fatalf("error registering endpoints: %s", err)
	}

	return c, router, storer, nower
}
