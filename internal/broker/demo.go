package broker

import (
	"context"
	"fmt"

	"github.com/maeda-takumi/trade-kabu/internal/types"
)

// DefaultFillsAfterPolls is how many polls a demo order stays SENT before filling.
const DefaultFillsAfterPolls = 2

// DemoBroker simulates an asynchronous broker for dry runs: every order is
// accepted, stays SENT for a fixed number of polls and then fills in full.
// The profit leg fills one poll later than everything else so the bracket
// legs never appear filled on the same tick.
type DemoBroker struct {
	fillsAfterPolls int
	pollCounts      map[string]int
	nextID          int
}

// NewDemoBroker creates a demo broker that fills orders after the given
// number of polls. Values below one fall back to DefaultFillsAfterPolls.
func NewDemoBroker(fillsAfterPolls int) *DemoBroker {
	if fillsAfterPolls < 1 {
		fillsAfterPolls = DefaultFillsAfterPolls
	}

	return &DemoBroker{
		fillsAfterPolls: fillsAfterPolls,
		pollCounts:      make(map[string]int),
		nextID:          1,
	}
}

// Submit implements Broker. It issues a sequential identifier and starts the
// order's poll counter.
func (d *DemoBroker) Submit(_ context.Context, _ *types.Order) (string, error) {
	orderID := fmt.Sprintf("DEMO-%d", d.nextID)
	d.nextID++
	d.pollCounts[orderID] = 0

	return orderID, nil
}

// Poll implements Broker. Orders report SENT until their poll count exceeds
// the configured threshold, then FILLED with the full requested quantity.
func (d *DemoBroker) Poll(_ context.Context, order *types.Order) (PollResult, error) {
	if order.OrderID == "" {
		return PollResult{Status: types.OrderStatusError, FilledQty: 0}, nil
	}

	d.pollCounts[order.OrderID]++

	if d.pollCounts[order.OrderID] > d.requiredPolls(order) {
		return PollResult{Status: types.OrderStatusFilled, FilledQty: order.Quantity}, nil
	}

	return PollResult{Status: types.OrderStatusSent, FilledQty: 0}, nil
}

// Cancel implements Broker. Demo cancellation always succeeds.
func (d *DemoBroker) Cancel(_ context.Context, _ *types.Order) (bool, error) {
	return true, nil
}

func (d *DemoBroker) requiredPolls(order *types.Order) int {
	if order.Role == types.RoleExitProfit {
		return d.fillsAfterPolls + 1
	}

	return d.fillsAfterPolls
}

// Ensure DemoBroker implements Broker.
var _ Broker = (*DemoBroker)(nil)
