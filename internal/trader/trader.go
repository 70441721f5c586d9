// Package trader implements the order-lifecycle state machine behind the
// trading console: entry submission, bracketed profit/loss exits emulating
// OCO, partial-fill remediation, deadline-driven forced liquidation and
// best-effort cleanup on failure. The trader is tick driven and never blocks
// waiting for fills; an external driver calls Poll on a cadence of its
// choosing.
//
// A trader instance manages exactly one trade and is not internally
// synchronized: drive it from a single goroutine, one instance per trade.
package trader

import (
	"context"
	"time"

	"github.com/maeda-takumi/trade-kabu/internal/broker"
	"github.com/maeda-takumi/trade-kabu/internal/logger"
	"github.com/maeda-takumi/trade-kabu/internal/store"
	"github.com/maeda-takumi/trade-kabu/internal/types"
	"github.com/maeda-takumi/trade-kabu/pkg/errors"
	"go.uber.org/zap"
)

// rolePollOrder fixes the order in which active orders are polled each tick.
// The loss leg is always handled before the profit leg; it is the safety leg.
var rolePollOrder = []types.OrderRole{
	types.RoleEntry,
	types.RoleExitLoss,
	types.RoleExitProfit,
	types.RoleExitMarket,
}

// AutoTrader drives one trade from entry to flat against a poll-only broker.
type AutoTrader struct {
	broker    broker.Broker
	store     store.OrderStore
	config    Config
	log       *logger.Logger
	callbacks Callbacks
	now       func() time.Time

	state types.TraderState
	// orders keys the latest order per role; a replaced order is superseded
	// here but remains a historical record in the store.
	orders     map[types.OrderRole]*types.Order
	entryOrder *types.Order

	profitPrice float64
	lossPrice   float64

	forceExitStartedAt time.Time
	lastForceExitPoll  time.Time

	confirmedOrderIDs map[string]bool
}

// Option configures an AutoTrader at construction.
type Option func(*AutoTrader)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(log *logger.Logger) Option {
	return func(t *AutoTrader) {
		t.log = log
	}
}

// WithCallbacks sets the progress notification callbacks.
func WithCallbacks(callbacks Callbacks) Option {
	return func(t *AutoTrader) {
		t.callbacks = callbacks
	}
}

// WithClock overrides the wall clock. Used by tests to drive the
// market-close, throttle and watchdog rules.
func WithClock(now func() time.Time) Option {
	return func(t *AutoTrader) {
		t.now = now
	}
}

// NewAutoTrader creates an idle trader. The store may be nil, in which case
// orders are not persisted.
func NewAutoTrader(b broker.Broker, orderStore store.OrderStore, config Config, opts ...Option) (*AutoTrader, error) {
	if b == nil {
		return nil, errors.New(errors.ErrCodeInvalidParameter, "broker is required")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	t := &AutoTrader{
		broker:            b,
		store:             orderStore,
		config:            config,
		log:               logger.NewNopLogger(),
		now:               time.Now,
		state:             types.StateIdle,
		orders:            make(map[types.OrderRole]*types.Order),
		confirmedOrderIDs: make(map[string]bool),
	}

	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

// State returns the trader's current state.
func (t *AutoTrader) State() types.TraderState {
	return t.state
}

// Order returns a copy of the latest order for the given role.
func (t *AutoTrader) Order(role types.OrderRole) (types.Order, bool) {
	order, ok := t.orders[role]
	if !ok {
		return types.Order{}, false
	}

	return *order, true
}

// StartTrade submits the entry order and records the bracket prices for the
// exit legs created once the entry fills. Calling it in any state other than
// IDLE is an illegal call: the trader goes to ERROR and no order is sent.
func (t *AutoTrader) StartTrade(ctx context.Context, entryOrder types.Order, profitPrice, lossPrice float64) error {
	if t.state != types.StateIdle {
		current := t.state
		t.setState(types.StateError)

		return errors.Newf(errors.ErrCodeIllegalCall, "start trade called in state %s, want IDLE", current)
	}

	entryOrder.Role = types.RoleEntry

	if err := entryOrder.Validate(); err != nil {
		return err
	}

	t.profitPrice = profitPrice
	t.lossPrice = lossPrice

	// Margin entries open a new long position unless told otherwise.
	if entryOrder.CashMargin == 2 && entryOrder.MarginTradeType == 0 {
		entryOrder.MarginTradeType = 1
	}

	order := entryOrder
	t.entryOrder = &order
	t.orders[types.RoleEntry] = &order

	if err := t.submitOrder(ctx, &order); err != nil {
		return err
	}

	t.setState(types.StateEntryWait)

	return nil
}

// Poll runs one tick: evaluate the market-close preemption rule, then poll
// every active order once and apply the resulting transitions. At most one
// broker round trip per active order per call; Poll never blocks waiting for
// a fill. Call-level broker failures propagate to the caller; status-driven
// failures are handled inside the state machine.
func (t *AutoTrader) Poll(ctx context.Context) error {
	if err := t.maybeForceExitByMarketClose(ctx); err != nil {
		return err
	}

	switch t.state {
	case types.StateEntryWait, types.StateExitWait, types.StateForceExiting:
		return t.pollActiveOrders(ctx)
	default:
		return nil
	}
}

// ForceExitMarket unwinds the position with a market order on explicit
// request. Forcing an exit before any position can exist is an illegal call.
// Once the trader is terminal the request is a no-op.
func (t *AutoTrader) ForceExitMarket(ctx context.Context) error {
	if t.state == types.StateIdle || t.state == types.StateEntryWait {
		current := t.state
		t.setState(types.StateError)

		return errors.Newf(errors.ErrCodeIllegalCall, "force exit called in state %s, no position exists", current)
	}

	if t.state.IsTerminal() {
		return nil
	}

	return t.forceExit(ctx)
}

func (t *AutoTrader) maybeForceExitByMarketClose(ctx context.Context) error {
	if !t.config.ForceExitUseMarketClose {
		return nil
	}

	if t.state.IsTerminal() {
		return nil
	}

	now := t.now()
	closeTime := time.Date(now.Year(), now.Month(), now.Day(),
		t.config.MarketCloseHour, t.config.MarketCloseMinute, 0, 0, now.Location())
	startTime := closeTime.Add(-time.Duration(t.config.ForceExitStartBeforeCloseMin) * time.Minute)
	deadline := closeTime.Add(-time.Duration(t.config.ForceExitDeadlineBeforeCloseMin) * time.Minute)

	if now.Before(startTime) {
		return nil
	}

	if t.state == types.StateForceExiting {
		return nil
	}

	if !now.After(deadline) {
		// No position can exist yet; an EXIT_MARKET here would be uncovered.
		if t.state == types.StateIdle || t.state == types.StateEntryWait {
			t.log.Error("Market close window opened before any position exists",
				zap.String("state", string(t.state)),
			)
			t.setState(types.StateError)

			return nil
		}

		t.log.Info("Market close approaching, forcing exit",
			zap.Time("close", closeTime),
			zap.Time("deadline", deadline),
		)

		return t.forceExit(ctx)
	}

	// Past the deadline the window to safely unwind is gone.
	t.log.Error("Missed the forced exit deadline before market close",
		zap.Time("deadline", deadline),
	)
	t.enterError(ctx)

	return nil
}

// forceExit submits an EXIT_MARKET order for the entry quantity and starts
// the watchdog. Callers are responsible for state preconditions.
func (t *AutoTrader) forceExit(ctx context.Context) error {
	if t.entryOrder == nil {
		t.setState(types.StateError)

		return nil
	}

	order := t.buildExitOrder(types.RoleExitMarket, types.OrderTypeMarket, t.entryOrder.Quantity)
	t.orders[types.RoleExitMarket] = &order

	if err := t.submitOrder(ctx, &order); err != nil {
		return err
	}

	t.setState(types.StateForceExiting)

	now := t.now()
	t.forceExitStartedAt = now
	t.lastForceExitPoll = now

	return nil
}

func (t *AutoTrader) pollActiveOrders(ctx context.Context) error {
	now := t.now()

	if t.state == types.StateForceExiting {
		if !t.forceExitStartedAt.IsZero() && now.Sub(t.forceExitStartedAt) > t.config.forceExitMaxDuration() {
			t.log.Error("Forced exit exceeded its maximum duration",
				zap.Duration("max_duration", t.config.forceExitMaxDuration()),
			)
			t.setState(types.StateError)

			return nil
		}

		if !t.lastForceExitPoll.IsZero() && now.Sub(t.lastForceExitPoll) < t.config.forceExitPollInterval() {
			return nil
		}

		t.lastForceExitPoll = now
	}

	// Snapshot before polling: orders created mid-tick (exit legs, partial
	// fill replacements) wait for the next tick.
	active := make([]*types.Order, 0, len(rolePollOrder))

	for _, role := range rolePollOrder {
		if order, ok := t.orders[role]; ok {
			active = append(active, order)
		}
	}

	for _, order := range active {
		// May have gone terminal while handling an earlier order this tick.
		if order.Status.IsTerminal() {
			continue
		}

		status, err := t.refreshOrder(ctx, order)
		if err != nil {
			return err
		}

		if status == types.OrderStatusRejected || status == types.OrderStatusError {
			t.enterError(ctx)

			return nil
		}

		if status == types.OrderStatusPartial {
			handled, err := t.handlePartialFill(ctx, order)
			if err != nil {
				return err
			}

			if handled {
				continue
			}
		}

		if err := t.onOrderEvent(ctx, order, status); err != nil {
			return err
		}
	}

	return nil
}

// onOrderEvent applies one (role, status) observation to the state machine.
func (t *AutoTrader) onOrderEvent(ctx context.Context, order *types.Order, status types.OrderStatus) error {
	if t.state == types.StateError {
		return nil
	}

	if status == types.OrderStatusRejected || status == types.OrderStatusError {
		t.enterError(ctx)

		return nil
	}

	switch {
	case order.Role == types.RoleEntry && status == types.OrderStatusFilled:
		t.setState(types.StateEntryFilled)

		return t.createExitOrders(ctx)

	case (order.Role == types.RoleExitProfit || order.Role == types.RoleExitLoss) && status == types.OrderStatusFilled:
		sibling := t.siblingExitLeg(order.Role)
		if sibling != nil && sibling.Status == types.OrderStatusFilled {
			// Both bracket legs filled: the position is inverted, not flat.
			t.log.Error("Both exit legs reported filled")
			t.enterError(ctx)

			return nil
		}

		if err := t.cancelSiblingExitLeg(ctx, order); err != nil {
			return err
		}

		// A failed sibling cancel escalates; only a clean resolution ends
		// the trade here.
		if t.state == types.StateExitWait {
			t.setState(types.StateExitFilled)
		}

	case order.Role == types.RoleExitMarket && status == types.OrderStatusFilled:
		t.setState(types.StateExitFilled)
	}

	return nil
}

// createExitOrders builds and submits the bracket legs for the filled entry,
// loss leg first since no true OCO exists and the loss leg is the safety leg.
func (t *AutoTrader) createExitOrders(ctx context.Context) error {
	if t.entryOrder == nil {
		t.setState(types.StateError)

		return nil
	}

	if t.profitPrice <= 0 || t.lossPrice <= 0 {
		t.log.Error("Cannot create exit orders without bracket prices",
			zap.Float64("profit_price", t.profitPrice),
			zap.Float64("loss_price", t.lossPrice),
		)
		t.setState(types.StateError)

		return nil
	}

	lossOrder := t.buildExitOrder(types.RoleExitLoss, types.OrderTypeStop, t.entryOrder.Quantity)
	lossOrder.TriggerPrice = t.lossPrice
	lossOrder.TriggerDirection = t.stopTriggerDirection()
	lossOrder.AfterHitType = types.OrderTypeMarket

	profitOrder := t.buildExitOrder(types.RoleExitProfit, types.OrderTypeLimit, t.entryOrder.Quantity)
	profitOrder.Price = t.profitPrice

	// Margin exits repay the position opened by the entry.
	if t.entryOrder.CashMargin == 2 {
		lossOrder.MarginTradeType = 2
		profitOrder.MarginTradeType = 2
	}

	t.orders[types.RoleExitLoss] = &lossOrder
	t.orders[types.RoleExitProfit] = &profitOrder

	t.log.Info("Creating exit orders",
		zap.Float64("profit_price", profitOrder.Price),
		zap.Float64("loss_trigger_price", lossOrder.TriggerPrice),
		zap.Float64("quantity", t.entryOrder.Quantity),
	)

	if err := t.submitOrder(ctx, &lossOrder); err != nil {
		return err
	}

	if err := t.submitOrder(ctx, &profitOrder); err != nil {
		return err
	}

	t.setState(types.StateExitWait)

	return nil
}

// cancelSiblingExitLeg cancels the other bracket leg after one fills. A
// declined cancel escalates to a forced market exit, since the position may
// now be doubled; if the forced exit cannot start either, the trade is fatal.
func (t *AutoTrader) cancelSiblingExitLeg(ctx context.Context, filledOrder *types.Order) error {
	for _, role := range []types.OrderRole{types.RoleExitProfit, types.RoleExitLoss} {
		order, ok := t.orders[role]
		if !ok || order == filledOrder {
			continue
		}

		canceled, err := t.requestCancel(ctx, order)
		if err != nil {
			return err
		}

		if !canceled {
			t.log.Warn("Failed to cancel sibling exit leg, forcing market exit",
				zap.String("role", string(order.Role)),
				zap.String("order_id", order.OrderID),
			)

			if err := t.forceExit(ctx); err != nil {
				return err
			}

			if t.state != types.StateForceExiting {
				t.enterError(ctx)
			}
		}
	}

	return nil
}

// handlePartialFill remediates a PARTIAL observation. During a forced exit
// the remaining quantity is topped up with another market order and the
// original is left as is; otherwise the order is canceled and replaced at
// the same price and trigger parameters for the remaining quantity. Reports
// whether the observation was consumed.
func (t *AutoTrader) handlePartialFill(ctx context.Context, order *types.Order) (bool, error) {
	if order.FilledQty <= 0 || order.FilledQty >= order.Quantity {
		return false, nil
	}

	remaining := order.Remaining()
	if remaining <= 0 {
		return false, nil
	}

	if t.state == types.StateForceExiting {
		replacement := order.CloneForQuantity(remaining)
		replacement.Role = types.RoleExitMarket
		replacement.Type = types.OrderTypeMarket

		t.orders[types.RoleExitMarket] = &replacement

		t.log.Info("Topping up partially filled forced exit",
			zap.String("order_id", order.OrderID),
			zap.Float64("remaining", remaining),
		)

		return true, t.submitOrder(ctx, &replacement)
	}

	canceled, err := t.requestCancel(ctx, order)
	if err != nil {
		return true, err
	}

	if !canceled {
		t.enterError(ctx)

		return true, nil
	}

	replacement := order.CloneForQuantity(remaining)
	t.orders[replacement.Role] = &replacement

	t.log.Info("Replacing partially filled order",
		zap.String("role", string(order.Role)),
		zap.String("order_id", order.OrderID),
		zap.Float64("remaining", remaining),
	)

	return true, t.submitOrder(ctx, &replacement)
}

// confirmOrderFilled issues one extra confirming poll before a FILLED signal
// is trusted, memoized per broker identifier. Gated by ReconcileOnSuccess.
// Not invoked from the tick loop; available to callers that want the guard.
func (t *AutoTrader) confirmOrderFilled(ctx context.Context, order *types.Order) (bool, error) {
	if !t.config.ReconcileOnSuccess {
		return true, nil
	}

	if order.OrderID == "" || t.confirmedOrderIDs[order.OrderID] {
		return true, nil
	}

	status, err := t.refreshOrder(ctx, order)
	if err != nil {
		return false, err
	}

	if status != types.OrderStatusFilled {
		return false, nil
	}

	t.confirmedOrderIDs[order.OrderID] = true

	return true, nil
}

// cancelAllOrders best-effort cancels everything not already filled or
// canceled. Used on the way into ERROR; failures are logged and ignored.
func (t *AutoTrader) cancelAllOrders(ctx context.Context) {
	for _, role := range rolePollOrder {
		order, ok := t.orders[role]
		if !ok {
			continue
		}

		if order.Status == types.OrderStatusFilled || order.Status == types.OrderStatusCanceled {
			continue
		}

		canceled, err := t.requestCancel(ctx, order)
		if err != nil || !canceled {
			t.log.Warn("Best-effort cancel failed",
				zap.String("role", string(order.Role)),
				zap.String("order_id", order.OrderID),
				zap.Error(err),
			)
		}
	}
}

// enterError moves to ERROR and best-effort cancels outstanding orders. Once
// here the trader initiates no further order activity.
func (t *AutoTrader) enterError(ctx context.Context) {
	t.setState(types.StateError)
	t.cancelAllOrders(ctx)
}

func (t *AutoTrader) setState(next types.TraderState) {
	if t.state == next {
		return
	}

	previous := t.state
	t.state = next

	t.log.Info("Trader state changed",
		zap.String("from", string(previous)),
		zap.String("to", string(next)),
	)

	if t.callbacks.OnStateChange != nil {
		t.callbacks.OnStateChange(previous, next)
	}

	if next.IsTerminal() && t.callbacks.OnFinished != nil {
		t.callbacks.OnFinished(next)
	}
}

func (t *AutoTrader) siblingExitLeg(role types.OrderRole) *types.Order {
	if role == types.RoleExitProfit {
		return t.orders[types.RoleExitLoss]
	}

	return t.orders[types.RoleExitProfit]
}

// stopTriggerDirection arms the loss stop on the losing side of the entry:
// a long position stops at or under the trigger, a short at or over.
func (t *AutoTrader) stopTriggerDirection() types.TriggerDirection {
	switch t.entryOrder.Side {
	case types.SideBuy:
		return types.TriggerUnder
	case types.SideSell:
		return types.TriggerOver
	default:
		return ""
	}
}

// buildExitOrder creates an unsubmitted exit order carrying the entry's
// routing fields, sided to close the position.
func (t *AutoTrader) buildExitOrder(role types.OrderRole, orderType types.OrderType, quantity float64) types.Order {
	entry := t.entryOrder

	order := types.NewOrder(role, orderType, quantity)
	order.Symbol = entry.Symbol
	order.Side = entry.Side.Opposite()
	order.Exchange = entry.Exchange
	order.CashMargin = entry.CashMargin
	order.MarginTradeType = entry.MarginTradeType
	order.AccountType = entry.AccountType
	order.ExpireDay = entry.ExpireDay
	order.TimeInForce = entry.TimeInForce

	if len(entry.ClosePositions) > 0 {
		order.ClosePositions = make([]types.ClosePosition, len(entry.ClosePositions))
		copy(order.ClosePositions, entry.ClosePositions)
	}

	return order
}
