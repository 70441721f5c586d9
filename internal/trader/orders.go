package trader

import (
	"context"

	"github.com/maeda-takumi/trade-kabu/internal/types"
	"github.com/maeda-takumi/trade-kabu/pkg/errors"
	"go.uber.org/zap"
)

// Order lifecycle operations. The trader is the sole owner of its orders;
// these are the only paths that mutate one after creation.

// submitOrder sends a NEW order to the broker, records the assigned
// identifier and persists the order. A failed broker call is returned to the
// caller, not absorbed into the state machine.
func (t *AutoTrader) submitOrder(ctx context.Context, order *types.Order) error {
	if order.Status != types.OrderStatusNew {
		return errors.Newf(errors.ErrCodeOrderNotSubmitted,
			"order %s has status %s, only NEW orders can be submitted", order.ID, order.Status)
	}

	orderID, err := t.broker.Submit(ctx, order)
	if err != nil {
		order.LastError = err.Error()

		return errors.Wrapf(errors.ErrCodeSubmitFailed, err, "failed to submit %s order", order.Role)
	}

	order.OrderID = orderID
	order.Status = types.OrderStatusSent

	t.log.Info("Order submitted",
		zap.String("role", string(order.Role)),
		zap.String("type", string(order.Type)),
		zap.String("order_id", order.OrderID),
		zap.Float64("quantity", order.Quantity),
	)

	t.persistInsert(ctx, order)

	return nil
}

// refreshOrder polls the broker for the order's current status. The status
// and filled quantity are updated in place; the store and the exit-leg
// callback are notified only when something actually changed. An order that
// was never assigned a broker identifier fails closed to ERROR without a
// broker call.
func (t *AutoTrader) refreshOrder(ctx context.Context, order *types.Order) (types.OrderStatus, error) {
	if order.OrderID == "" {
		order.Status = types.OrderStatusError
		order.LastError = "order has no broker identifier"

		return order.Status, nil
	}

	previousStatus := order.Status
	previousFilledQty := order.FilledQty

	result, err := t.broker.Poll(ctx, order)
	if err != nil {
		return order.Status, errors.Wrapf(errors.ErrCodePollFailed, err, "failed to poll %s order", order.Role)
	}

	order.Status = result.Status
	if result.FilledQty > 0 {
		order.FilledQty = result.FilledQty
	}

	// Brokers may signal a fill without a cumulative quantity figure.
	if order.Status == types.OrderStatusFilled && order.FilledQty == 0 {
		order.FilledQty = order.Quantity
	}

	if order.Status != previousStatus || order.FilledQty != previousFilledQty {
		t.persistUpdate(ctx, order)
		t.notifyExitLeg(order)
	}

	return order.Status, nil
}

// requestCancel asks the broker to cancel the order. The order is marked
// CANCELED only when the broker confirms; a declined cancel is reported to
// the caller to escalate. No internal retry.
func (t *AutoTrader) requestCancel(ctx context.Context, order *types.Order) (bool, error) {
	ok, err := t.broker.Cancel(ctx, order)
	if err != nil {
		return false, errors.Wrapf(errors.ErrCodeCancelFailed, err, "failed to cancel %s order", order.Role)
	}

	if ok {
		order.Status = types.OrderStatusCanceled
		t.persistUpdate(ctx, order)
		t.notifyExitLeg(order)
	}

	return ok, nil
}

// Store writes are best effort: a persistence failure is logged and never
// fails the trade.

func (t *AutoTrader) persistInsert(ctx context.Context, order *types.Order) {
	if t.store == nil {
		return
	}

	if err := t.store.InsertOrder(ctx, order); err != nil {
		t.log.Warn("Failed to persist order",
			zap.String("order_id", order.OrderID),
			zap.Error(err),
		)
	}
}

func (t *AutoTrader) persistUpdate(ctx context.Context, order *types.Order) {
	if t.store == nil {
		return
	}

	if err := t.store.UpdateStatus(ctx, order.OrderID, order.Status, order.FilledQty); err != nil {
		t.log.Warn("Failed to persist order status",
			zap.String("order_id", order.OrderID),
			zap.Error(err),
		)
	}
}

func (t *AutoTrader) notifyExitLeg(order *types.Order) {
	if t.callbacks.OnExitLegStatus == nil {
		return
	}

	if order.Role == types.RoleExitProfit || order.Role == types.RoleExitLoss {
		t.callbacks.OnExitLegStatus(order.Role, order.Status)
	}
}
