package checkoutstripe

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v74"
	"go.uber.org/mock/gomock"

	"github.com/pawshop/storefront/services/checkout"
)

func TestStripeGateway(t *testing.T) {

	t.Run("Create intent passes amount and metadata", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		ctx, gateway, payer := setup(t, ctrl)

		// given
		payer.EXPECT().CreatePaymentIntent(ctx, gomock.Any()).DoAndReturn(
			func(_ context.Context, params stripe.PaymentIntentParams) (stripe.PaymentIntent, error) {
				assert.Equal(t, int64(4700), *params.Amount)
				assert.Equal(t, "eur", *params.Currency)
				assert.Equal(t, "rex@example.com", *params.ReceiptEmail)
				assert.Equal(t, "order-1", params.Metadata["orderID"])
				return stripe.PaymentIntent{ID: "pi_123", ClientSecret: "pi_123_secret_456"}, nil
			})

		// when
		resp, err := gateway.CreateIntent(ctx, checkout.IntentRequest{
			OrderID:       "order-1",
			CustomerEmail: "rex@example.com",
			AmountInCents: 4700,
			Currency:      "EUR",
		})

		// then
		assert.NoError(t, err)
		assert.Equal(t, "pi_123_secret_456", resp.ClientSecret)
	})

	t.Run("Confirm succeeded", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		ctx, gateway, payer := setup(t, ctrl)

		// given
		payer.EXPECT().ConfirmPaymentIntent(ctx, "pi_123", gomock.Any()).Return(stripe.PaymentIntent{
			ID:       "pi_123",
			Status:   stripe.PaymentIntentStatusSucceeded,
			Amount:   4700,
			Currency: stripe.CurrencyEUR,
		}, nil)

		// when
		result, err := gateway.Confirm(ctx, "pi_123_secret_456", "pm_card_visa")

		// then
		assert.NoError(t, err)
		succeeded, ok := result.(checkout.PaymentSucceeded)
		assert.True(t, ok)
		assert.Equal(t, "pi_123", succeeded.GatewayPaymentID)
		assert.Equal(t, int64(4700), succeeded.AmountInCents)
		assert.Equal(t, "EUR", succeeded.Currency)
	})

	t.Run("Confirm requires action", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		ctx, gateway, payer := setup(t, ctrl)

		// given
		payer.EXPECT().ConfirmPaymentIntent(ctx, "pi_123", gomock.Any()).Return(stripe.PaymentIntent{
			ID:           "pi_123",
			Status:       stripe.PaymentIntentStatusRequiresAction,
			ClientSecret: "pi_123_secret_456",
		}, nil)

		// when
		result, err := gateway.Confirm(ctx, "pi_123_secret_456", "pm_card_3ds")

		// then
		assert.NoError(t, err)
		action, ok := result.(checkout.PaymentRequiresAction)
		assert.True(t, ok)
		assert.Equal(t, "pi_123_secret_456", action.ActionToken)
	})

	t.Run("Confirm card error is a decline", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		ctx, gateway, payer := setup(t, ctrl)

		// given
		payer.EXPECT().ConfirmPaymentIntent(ctx, "pi_123", gomock.Any()).Return(stripe.PaymentIntent{}, &stripe.Error{
			Type: stripe.ErrorTypeCard,
			Code: stripe.ErrorCodeCardDeclined,
			Msg:  "Your card was declined.",
		})

		// when
		result, err := gateway.Confirm(ctx, "pi_123_secret_456", "pm_card_declined")

		// then
		assert.NoError(t, err)
		declined, ok := result.(checkout.PaymentDeclined)
		assert.True(t, ok)
		assert.Equal(t, string(stripe.ErrorCodeCardDeclined), declined.ReasonCode)
		assert.Contains(t, declined.Message, "declined")
	})

	t.Run("Confirm network error is a transport error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		ctx, gateway, payer := setup(t, ctrl)

		// given
		payer.EXPECT().ConfirmPaymentIntent(ctx, "pi_123", gomock.Any()).
			Return(stripe.PaymentIntent{}, errors.New("connection reset"))

		// when
		result, err := gateway.Confirm(ctx, "pi_123_secret_456", "pm_card_visa")

		// then
		assert.NoError(t, err)
		transport, ok := result.(checkout.PaymentTransportError)
		assert.True(t, ok)
		assert.Contains(t, transport.Message, "connection reset")
	})

	t.Run("Confirm rejected intent keeps decline reason", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		ctx, gateway, payer := setup(t, ctrl)

		// given
		payer.EXPECT().ConfirmPaymentIntent(ctx, "pi_123", gomock.Any()).Return(stripe.PaymentIntent{
			ID:     "pi_123",
			Status: stripe.PaymentIntentStatusRequiresPaymentMethod,
			LastPaymentError: &stripe.Error{
				Code: stripe.ErrorCodeExpiredCard,
				Msg:  "Your card has expired.",
			},
		}, nil)

		// when
		result, err := gateway.Confirm(ctx, "pi_123_secret_456", "pm_card_expired")

		// then
		assert.NoError(t, err)
		declined, ok := result.(checkout.PaymentDeclined)
		assert.True(t, ok)
		assert.Equal(t, string(stripe.ErrorCodeExpiredCard), declined.ReasonCode)
	})

	t.Run("Malformed client secret is an error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		ctx, gateway, _ := setup(t, ctrl)

		// when
		result, err := gateway.Confirm(ctx, "garbage", "pm_card_visa")

		// then
		assert.Error(t, err)
		assert.Nil(t, result)
	})
}

func setup(t *testing.T, ctrl *gomock.Controller) (context.Context, *Gateway, *MockPayer) {
	c := context.TODO()
	payer := NewMockPayer(ctrl)
	payer.EXPECT().UseApiKey("sk_test_123")

	gateway, err := NewGateway("sk_test_123", payer)
	if err != nil {
		t.Fatalf("error creating gateway: %s", err)
	}

	return c, gateway, payer
}
