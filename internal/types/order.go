package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/maeda-takumi/trade-kabu/pkg/errors"
)

// OrderRole classifies which phase of the trade an order belongs to.
// At most one non-terminal order per role exists at any time.
type OrderRole string

const (
	RoleEntry      OrderRole = "ENTRY"
	RoleExitProfit OrderRole = "EXIT_PROFIT"
	RoleExitLoss   OrderRole = "EXIT_LOSS"
	RoleExitMarket OrderRole = "EXIT_MARKET"
)

// OrderStatus is the canonical order state reported by a broker adapter.
type OrderStatus string

const (
	// OrderStatusNew is the pre-submission state.
	OrderStatusNew OrderStatus = "NEW"
	// OrderStatusSent and OrderStatusPartial are active, pollable states.
	OrderStatusSent    OrderStatus = "SENT"
	OrderStatusPartial OrderStatus = "PARTIAL"
	// Terminal states for a single order instance.
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusCanceled OrderStatus = "CANCELED"
	OrderStatusRejected OrderStatus = "REJECTED"
	OrderStatusError    OrderStatus = "ERROR"
)

// IsTerminal reports whether the status ends the order's lifecycle.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusError:
		return true
	case OrderStatusNew, OrderStatusSent, OrderStatusPartial:
		return false
	default:
		return false
	}
}

// OrderType is the execution type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeStop   OrderType = "STOP"
)

// Side is the buy/sell direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side for a position opened on s.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return ""
	}
}

// TriggerDirection controls when a stop order arms relative to its trigger price.
type TriggerDirection string

const (
	// TriggerOver arms the stop at or above the trigger price.
	TriggerOver TriggerDirection = "OVER"
	// TriggerUnder arms the stop at or below the trigger price.
	TriggerUnder TriggerDirection = "UNDER"
)

// TraderState is the orchestrator's own state machine position.
type TraderState string

const (
	StateIdle         TraderState = "IDLE"
	StateEntryWait    TraderState = "ENTRY_WAIT"
	StateEntryFilled  TraderState = "ENTRY_FILLED"
	StateExitWait     TraderState = "EXIT_WAIT"
	StateForceExiting TraderState = "FORCE_EXITING"
	StateExitFilled   TraderState = "EXIT_FILLED"
	StateError        TraderState = "ERROR"
)

// IsTerminal reports whether the trader has finished, successfully or not.
func (s TraderState) IsTerminal() bool {
	return s == StateExitFilled || s == StateError
}

// ClosePosition identifies a held margin position to repay when closing.
type ClosePosition struct {
	HoldID   string  `yaml:"hold_id" json:"hold_id" validate:"required"`
	Quantity float64 `yaml:"quantity" json:"quantity" validate:"required,gt=0"`
}

// Order holds one order's submission parameters, broker-assigned identifier,
// and current status and filled quantity. Orders are owned exclusively by the
// trader; a partial fill produces a replacement order rather than mutating
// the original's parameters.
type Order struct {
	// ID is the client-side identifier, assigned at creation.
	ID     string    `yaml:"id" json:"id" validate:"required,uuid"`
	Role   OrderRole `yaml:"role" json:"role" validate:"required,oneof=ENTRY EXIT_PROFIT EXIT_LOSS EXIT_MARKET"`
	Type   OrderType `yaml:"type" json:"type" validate:"required,oneof=MARKET LIMIT STOP"`
	Symbol string    `yaml:"symbol" json:"symbol"`
	Side   Side      `yaml:"side" json:"side" validate:"omitempty,oneof=BUY SELL"`
	// Quantity is the requested quantity; FilledQty never exceeds it.
	Quantity float64 `yaml:"quantity" json:"quantity" validate:"required,gt=0"`
	// Price is the limit price. Zero means unset.
	Price float64 `yaml:"price" json:"price" validate:"gte=0"`
	// TriggerPrice, TriggerDirection and the AfterHit fields describe the
	// stop condition for STOP orders.
	TriggerPrice     float64          `yaml:"trigger_price" json:"trigger_price" validate:"gte=0"`
	TriggerDirection TriggerDirection `yaml:"trigger_direction" json:"trigger_direction" validate:"omitempty,oneof=OVER UNDER"`
	AfterHitType     OrderType        `yaml:"after_hit_type" json:"after_hit_type" validate:"omitempty,oneof=MARKET LIMIT"`
	AfterHitPrice    float64          `yaml:"after_hit_price" json:"after_hit_price" validate:"gte=0"`
	// Broker-specific routing fields, passed through to the adapter.
	Exchange        int             `yaml:"exchange" json:"exchange"`
	CashMargin      int             `yaml:"cash_margin" json:"cash_margin"`
	MarginTradeType int             `yaml:"margin_trade_type" json:"margin_trade_type"`
	AccountType     int             `yaml:"account_type" json:"account_type"`
	ExpireDay       int             `yaml:"expire_day" json:"expire_day"`
	TimeInForce     string          `yaml:"time_in_force" json:"time_in_force"`
	ClosePositions  []ClosePosition `yaml:"close_positions" json:"close_positions"`
	// OrderID is the broker-assigned identifier, empty until submitted.
	OrderID   string      `yaml:"order_id" json:"order_id"`
	Status    OrderStatus `yaml:"status" json:"status"`
	FilledQty float64     `yaml:"filled_qty" json:"filled_qty" validate:"gte=0"`
	LastError string      `yaml:"last_error" json:"last_error"`
	CreatedAt time.Time   `yaml:"created_at" json:"created_at"`
}

// NewOrder creates an unsubmitted order with a fresh client identifier.
func NewOrder(role OrderRole, orderType OrderType, quantity float64) Order {
	return Order{
		ID:        uuid.New().String(),
		Role:      role,
		Type:      orderType,
		Quantity:  quantity,
		Status:    OrderStatusNew,
		CreatedAt: time.Now(),
	}
}

// Validate validates the Order struct.
func (o *Order) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order", err)
	}

	if o.FilledQty > o.Quantity {
		return errors.Newf(errors.ErrCodeInvalidOrder,
			"filled quantity %.2f exceeds requested quantity %.2f", o.FilledQty, o.Quantity)
	}

	return nil
}

// Remaining returns the unfilled portion of the requested quantity.
func (o *Order) Remaining() float64 {
	remaining := o.Quantity - o.FilledQty
	if remaining < 0 {
		return 0
	}

	return remaining
}

// CloneForQuantity returns a fresh, unsubmitted copy of the order sized to
// the given quantity. Price, trigger and routing fields carry over; the
// broker identifier, status, fill progress and error do not.
func (o *Order) CloneForQuantity(quantity float64) Order {
	clone := *o
	clone.ID = uuid.New().String()
	clone.Quantity = quantity
	clone.OrderID = ""
	clone.Status = OrderStatusNew
	clone.FilledQty = 0
	clone.LastError = ""
	clone.CreatedAt = time.Now()

	if len(o.ClosePositions) > 0 {
		clone.ClosePositions = make([]ClosePosition, len(o.ClosePositions))
		copy(clone.ClosePositions, o.ClosePositions)
	}

	return clone
}
