package types

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrder(t *testing.T) {
	order := NewOrder(RoleEntry, OrderTypeMarket, 100)

	assert.Equal(t, RoleEntry, order.Role)
	assert.Equal(t, OrderTypeMarket, order.Type)
	assert.Equal(t, float64(100), order.Quantity)
	assert.Equal(t, OrderStatusNew, order.Status)
	assert.Empty(t, order.OrderID)
	assert.False(t, order.CreatedAt.IsZero())

	_, err := uuid.Parse(order.ID)
	assert.NoError(t, err)
}

func TestOrderValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *Order)
		wantErr bool
	}{
		{
			name:    "valid market order",
			mutate:  func(o *Order) {},
			wantErr: false,
		},
		{
			name:    "zero quantity",
			mutate:  func(o *Order) { o.Quantity = 0 },
			wantErr: true,
		},
		{
			name:    "unknown role",
			mutate:  func(o *Order) { o.Role = "EXIT_HEDGE" },
			wantErr: true,
		},
		{
			name:    "unknown side",
			mutate:  func(o *Order) { o.Side = "HOLD" },
			wantErr: true,
		},
		{
			name:    "filled more than requested",
			mutate:  func(o *Order) { o.FilledQty = o.Quantity + 1 },
			wantErr: true,
		},
		{
			name: "stop order with trigger",
			mutate: func(o *Order) {
				o.Type = OrderTypeStop
				o.TriggerPrice = 95
				o.TriggerDirection = TriggerUnder
				o.AfterHitType = OrderTypeMarket
			},
			wantErr: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			order := NewOrder(RoleEntry, OrderTypeMarket, 100)
			order.Side = SideBuy
			tc.mutate(&order)

			err := order.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOrderRemaining(t *testing.T) {
	order := NewOrder(RoleExitProfit, OrderTypeLimit, 100)
	assert.Equal(t, float64(100), order.Remaining())

	order.FilledQty = 40
	assert.Equal(t, float64(60), order.Remaining())

	order.FilledQty = 100
	assert.Equal(t, float64(0), order.Remaining())

	// Over-fill never goes negative.
	order.FilledQty = 120
	assert.Equal(t, float64(0), order.Remaining())
}

func TestCloneForQuantity(t *testing.T) {
	order := NewOrder(RoleExitLoss, OrderTypeStop, 100)
	order.Symbol = "7203"
	order.Side = SideSell
	order.TriggerPrice = 95
	order.TriggerDirection = TriggerUnder
	order.AfterHitType = OrderTypeMarket
	order.CashMargin = 2
	order.MarginTradeType = 2
	order.ClosePositions = []ClosePosition{{HoldID: "H-1", Quantity: 100}}
	order.OrderID = "BRK-42"
	order.Status = OrderStatusPartial
	order.FilledQty = 40
	order.LastError = "stale"

	clone := order.CloneForQuantity(60)

	require.NotEqual(t, order.ID, clone.ID)
	assert.Equal(t, float64(60), clone.Quantity)
	assert.Empty(t, clone.OrderID)
	assert.Equal(t, OrderStatusNew, clone.Status)
	assert.Zero(t, clone.FilledQty)
	assert.Empty(t, clone.LastError)

	// Pricing and routing parameters carry over.
	assert.Equal(t, order.TriggerPrice, clone.TriggerPrice)
	assert.Equal(t, order.TriggerDirection, clone.TriggerDirection)
	assert.Equal(t, order.Symbol, clone.Symbol)
	assert.Equal(t, order.MarginTradeType, clone.MarginTradeType)
	assert.Equal(t, order.ClosePositions, clone.ClosePositions)

	// The clone owns its own close positions slice.
	clone.ClosePositions[0].Quantity = 60
	assert.Equal(t, float64(100), order.ClosePositions[0].Quantity)
}

func TestOrderStatusIsTerminal(t *testing.T) {
	terminal := []OrderStatus{OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusError}
	for _, s := range terminal {
		assert.True(t, s.IsTerminal(), string(s))
	}

	active := []OrderStatus{OrderStatusNew, OrderStatusSent, OrderStatusPartial}
	for _, s := range active {
		assert.False(t, s.IsTerminal(), string(s))
	}
}

func TestTraderStateIsTerminal(t *testing.T) {
	assert.True(t, StateExitFilled.IsTerminal())
	assert.True(t, StateError.IsTerminal())
	assert.False(t, StateIdle.IsTerminal())
	assert.False(t, StateEntryWait.IsTerminal())
	assert.False(t, StateExitWait.IsTerminal())
	assert.False(t, StateForceExiting.IsTerminal())
}

func TestSideOpposite(t *testing.T) {
	assert.Equal(t, SideSell, SideBuy.Opposite())
	assert.Equal(t, SideBuy, SideSell.Opposite())
	assert.Equal(t, Side(""), Side("").Opposite())
}
