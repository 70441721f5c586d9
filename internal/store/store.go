// Package store persists every order the trader creates, together with each
// status change, so the console can reconstruct a trade after the fact. The
// trader only writes; reads exist for the console's order table and tests.
package store

import (
	"context"

	"github.com/maeda-takumi/trade-kabu/internal/types"
)

// OrderStore is the persistence contract the trader writes through.
type OrderStore interface {
	// InsertOrder records a newly submitted order. It must be idempotent by
	// broker order identifier: inserting the same identifier twice is a
	// no-op, not an error. Orders without a broker identifier are skipped.
	InsertOrder(ctx context.Context, order *types.Order) error
	// UpdateStatus records a status or filled-quantity change for the order
	// with the given broker identifier.
	UpdateStatus(ctx context.Context, orderID string, status types.OrderStatus, filledQty float64) error
}
