package cart

import (
	"context"

	"github.com/pawshop/storefront/lib/mylog"
	"github.com/pawshop/storefront/lib/mypubsub"
	"github.com/pawshop/storefront/lib/mystore"
	"github.com/pawshop/storefront/lib/mytime"
	"github.com/pawshop/storefront/services/cart/cartmodel"
)

// service persists each shopper's cart on a best-effort basis: the
// in-memory cart handed back to the caller is authoritative, a failing
// write is logged and swallowed so that a storage hiccup never blocks
// the cart.
type service struct {
	cartStore mystore.Store[cartmodel.Cart]
	nower     mytime.Nower
	pubsub    mypubsub.PubSub
	logger    mylog.Logger
}

func newService(cartStore mystore.Store[cartmodel.Cart], nower mytime.Nower, pubsub mypubsub.PubSub, logger mylog.Logger) *service {
	return &service{
		cartStore: cartStore,
		nower:     nower,
		pubsub:    pubsub,
		logger:    logger,
	}
}

// getCart rehydrates the shopper's cart. Anything that prevents
// rehydration (missing, storage error, corrupt entity) degrades to an
// empty cart rather than an error.
func (s *service) getCart(c context.Context, shopperUID string) cartmodel.Cart {
	cart, found, err := s.cartStore.Get(c, shopperUID)
	if err != nil {
		s.logger.Log(c, shopperUID, mylog.SeverityWarn, "Error rehydrating cart of shopper %s, starting empty: %s", shopperUID, err)
		return cartmodel.New(shopperUID, s.nower.Now())
	}
	if !found {
		return cartmodel.New(shopperUID, s.nower.Now())
	}

	return cart
}

func (s *service) addLine(c context.Context, shopperUID string, line cartmodel.Line) cartmodel.Cart {
	cart := s.getCart(c, shopperUID)
	cart.AddLine(line)
	s.save(c, cart)

	return cart
}

func (s *service) setQuantity(c context.Context, shopperUID string, productID string, quantity int) cartmodel.Cart {
	cart := s.getCart(c, shopperUID)
	cart.SetQuantity(productID, quantity)
	s.save(c, cart)

	return cart
}

func (s *service) removeLine(c context.Context, shopperUID string, productID string) cartmodel.Cart {
	cart := s.getCart(c, shopperUID)
	cart.RemoveLine(productID)
	s.save(c, cart)

	return cart
}

func (s *service) clear(c context.Context, shopperUID string) cartmodel.Cart {
	cart := s.getCart(c, shopperUID)
	cart.Clear()

	// release the persisted slot entirely
	err := s.cartStore.Delete(c, shopperUID)
	if err != nil {
		s.logger.Log(c, shopperUID, mylog.SeverityWarn, "Error releasing persisted cart of shopper %s: %s", shopperUID, err)
	}

	return cart
}

// save is fire-and-forget durability: failures are reported to the log
// side-channel only, never to the mutation call path.
func (s *service) save(c context.Context, cart cartmodel.Cart) {
	now := s.nower.Now()
	cart.LastModified = &now

	err := s.cartStore.Put(c, cart.ShopperUID, cart)
	if err != nil {
		s.logger.Log(c, cart.ShopperUID, mylog.SeverityWarn, "Error persisting cart of shopper %s: %s", cart.ShopperUID, err)
	}
}
