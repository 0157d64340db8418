package cart

import (
	"context"
	"fmt"

	"github.com/pawshop/storefront/lib/myhttp"
	"github.com/pawshop/storefront/lib/mylog"
	"github.com/pawshop/storefront/services/checkout/checkoutevents"
)

func (s *service) Subscribe(c context.Context) error {
	err := s.pubsub.CreateTopic(c, checkoutevents.TopicName)
	if err != nil {
		return fmt.Errorf("error creating topic %s: %s", checkoutevents.TopicName, err)
	}

	err = s.pubsub.Subscribe(c, checkoutevents.TopicName, myhttp.GuessHostnameWithScheme()+"/api/cart/event")
	if err != nil {
		return fmt.Errorf("error subscribing to topic %s: %s", checkoutevents.TopicName, err)
	}

	return nil
}

func (s *service) OnCheckoutStarted(c context.Context, topic string, event checkoutevents.CheckoutStarted) error {
	return nil
}

// OnCheckoutCompleted releases the shopper's cart once a checkout has
// succeeded. The checkout service already clears it synchronously; this
// webhook catches the case where that best-effort delete was lost.
func (s *service) OnCheckoutCompleted(c context.Context, topic string, event checkoutevents.CheckoutCompleted) error {
	if !event.Success {
		return nil
	}

	s.logger.Log(c, event.ShopperUID, mylog.SeverityInfo, "Webhook: checkout %s completed, releasing cart of shopper %s", event.SessionUID, event.ShopperUID)

	return s.cartStore.RunInTransaction(c, func(c context.Context) error {
		// must be idempotent
		_, found, err := s.cartStore.Get(c, event.ShopperUID)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}

		return s.cartStore.Delete(c, event.ShopperUID)
	})
}
