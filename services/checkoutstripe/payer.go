package checkoutstripe

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"

	"github.com/pawshop/storefront/lib/myerrors"
)

//go:generate mockgen -source=payer.go -package checkoutstripe -destination payer_mock.go Payer
type Payer interface {
	UseApiKey(key string)
	CreatePaymentIntent(ctx context.Context, params stripe.PaymentIntentParams) (stripe.PaymentIntent, error)
	ConfirmPaymentIntent(ctx context.Context, intentID string, params stripe.PaymentIntentConfirmParams) (stripe.PaymentIntent, error)
}

type stripePayer struct{}

func NewPayer() Payer {
	return &stripePayer{}
}

func (p *stripePayer) UseApiKey(apiKey string) {
	stripe.Key = apiKey
}

func (p *stripePayer) CreatePaymentIntent(ctx context.Context, params stripe.PaymentIntentParams) (stripe.PaymentIntent, error) {
	intent, err := paymentintent.New(&params)
	if err != nil {
		return stripe.PaymentIntent{}, myerrors.NewInvalidInputError(fmt.Errorf("error creating stripe payment intent: %s", err))
	}

	return *intent, nil
}

func (p *stripePayer) ConfirmPaymentIntent(ctx context.Context, intentID string, params stripe.PaymentIntentConfirmParams) (stripe.PaymentIntent, error) {
	intent, err := paymentintent.Confirm(intentID, &params)
	if err != nil {
		// keep the raw error: the caller classifies stripe error types
		return stripe.PaymentIntent{}, err
	}

	return *intent, nil
}
