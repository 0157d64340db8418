package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pawshop/storefront/lib/myerrors"
	"github.com/pawshop/storefront/lib/myhttpclient"
	"github.com/pawshop/storefront/lib/mylog"
	"github.com/pawshop/storefront/lib/myqueue"
	"github.com/pawshop/storefront/lib/mystore"
	"github.com/pawshop/storefront/lib/mytime"
	"github.com/pawshop/storefront/services/checkout"
)

type service struct {
	orderStore      mystore.Store[PendingOrder]
	httpClient      myhttpclient.HTTPSender
	queue           myqueue.TaskQueuer
	nower           mytime.Nower
	logger          mylog.Logger
	orderServiceURL string
}

// Use dependency injection to isolate the infrastructure and ease testing
func newService(orderStore mystore.Store[PendingOrder], httpClient myhttpclient.HTTPSender, queue myqueue.TaskQueuer,
	nower mytime.Nower, logger mylog.Logger, orderServiceURL string) *service {
	return &service{
		orderStore:      orderStore,
		httpClient:      httpClient,
		queue:           queue,
		nower:           nower,
		logger:          logger,
		orderServiceURL: orderServiceURL,
	}
}

// placeOrder stores the order before submitting it: a crash or a failed
// submission must never lose a paid-for order. On failure a retry task is
// enqueued and the error is reported to the caller.
func (s *service) placeOrder(c context.Context, req checkout.OrderRequest) error {
	now := s.nower.Now()

	order := PendingOrder{
		OrderID:          req.OrderID,
		GatewayPaymentID: req.GatewayPaymentID,
		CustomerEmail:    req.CustomerEmail,
		AmountInCents:    req.AmountInCents,
		Currency:         req.Currency,
		Lines:            req.Lines,
		Address:          req.Address,
		CreatedAt:        now,
	}
	err := s.orderStore.Put(c, order.OrderID, order)
	if err != nil {
		return myerrors.NewInternalError(fmt.Errorf("error storing pending order %s: %s", order.OrderID, err))
	}

	err = s.submit(c, order)
	if err != nil {
		s.enqueueRetry(c, order.OrderID)
		return err
	}

	return nil
}

// retry replays a stored pending order. Invoked by the task queue via the
// retry webhook; a still-failing submission is re-enqueued unless the
// queue says this was the final attempt.
func (s *service) retry(c context.Context, orderID string, isLastAttempt bool) error {
	order, found, err := s.orderStore.Get(c, orderID)
	if err != nil {
		return myerrors.NewInternalError(fmt.Errorf("error fetching pending order %s: %s", orderID, err))
	}
	if !found {
		return myerrors.NewNotFoundError(fmt.Errorf("pending order %s not found", orderID))
	}
	if order.Completed {
		// duplicate task delivery, nothing left to do
		return nil
	}

	err = s.submit(c, order)
	if err != nil {
		if isLastAttempt {
			s.logger.Log(c, orderID, mylog.SeverityError, "Giving up on order %s after %d attempts: %s", orderID, order.Attempts, err)
			return nil
		}

		return err
	}

	return nil
}

func (s *service) getOrder(c context.Context, orderID string) (PendingOrder, error) {
	order, found, err := s.orderStore.Get(c, orderID)
	if err != nil {
		return PendingOrder{}, myerrors.NewInternalError(fmt.Errorf("error fetching order %s: %s", orderID, err))
	}
	if !found {
		return PendingOrder{}, myerrors.NewNotFoundError(fmt.Errorf("order %s not found", orderID))
	}

	return order, nil
}

// submit performs one submission attempt. Any outcome other than a 2xx
// response counts as failure; the order service deduplicates by order id,
// so replaying after an ambiguous timeout is safe.
func (s *service) submit(c context.Context, order PendingOrder) error {
	now := s.nower.Now()

	payload, err := json.Marshal(newOrderPayload(order))
	if err != nil {
		return myerrors.NewInternalError(fmt.Errorf("error marshalling order %s: %s", order.OrderID, err))
	}

	order.Attempts++
	order.LastAttemptAt = &now

	httpStatus, _, sendErr := s.httpClient.Send(c, http.MethodPost, s.orderServiceURL+"/api/orders", payload)
	if sendErr == nil && httpStatus >= 200 && httpStatus < 300 {
		order.Completed = true
	}

	err = s.orderStore.Put(c, order.OrderID, order)
	if err != nil {
		return myerrors.NewInternalError(fmt.Errorf("error storing pending order %s: %s", order.OrderID, err))
	}

	if sendErr != nil {
		return myerrors.NewUnavailableError(fmt.Errorf("error submitting order %s: %s", order.OrderID, sendErr))
	}
	if !order.Completed {
		return myerrors.NewUnavailableError(fmt.Errorf("order service rejected order %s with status %d", order.OrderID, httpStatus))
	}

	s.logger.Log(c, order.OrderID, mylog.SeverityInfo, "Order %s submitted after %d attempt(s)", order.OrderID, order.Attempts)

	return nil
}

func (s *service) enqueueRetry(c context.Context, orderID string) {
	err := s.queue.Enqueue(c, myqueue.Task{
		UID:            "retry-order-" + orderID,
		WebhookURLPath: fmt.Sprintf("/api/orders/retry/%s", orderID),
		Payload:        []byte{},
	})
	if err != nil {
		s.logger.Log(c, orderID, mylog.SeverityError, "Error enqueuing retry for order %s: %s", orderID, err)
		return
	}

	s.logger.Log(c, orderID, mylog.SeverityInfo, "Enqueued retry for order %s", orderID)
}
