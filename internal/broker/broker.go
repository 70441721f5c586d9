// Package broker defines the capability contract an order-routing adapter
// must satisfy, and provides the demo adapter used by the console's dry-run
// mode. Concrete adapters are swapped by dependency injection at trader
// construction; the trader never depends on a concrete adapter.
package broker

import (
	"context"

	"github.com/maeda-takumi/trade-kabu/internal/types"
)

// PollResult is the outcome of one status poll against the broker.
type PollResult struct {
	Status types.OrderStatus
	// FilledQty is the cumulative filled quantity the broker reports,
	// zero if the broker exposes no fill figure.
	FilledQty float64
}

// Broker is the set of order operations the trader depends on.
//
// Adapter responsibilities, invisible to the trader beyond success or
// failure of the three calls:
//   - Submit must either return a broker-assigned identifier or fail. It is
//     called exactly once per order instance and need not be idempotent.
//     Payload construction and required-field validation are adapter-local
//     and must fail before any network call when mandatory fields are
//     missing.
//   - Poll must map broker-native state onto the canonical OrderStatus set,
//     classifying any state it cannot confidently interpret as
//     OrderStatusError rather than guessing an active status.
//   - Credential or token refresh on authentication expiry is handled
//     inside the adapter, retrying the same call exactly once after
//     refreshing.
type Broker interface {
	// Submit sends the order and returns the broker-assigned identifier.
	Submit(ctx context.Context, order *types.Order) (string, error)
	// Poll fetches the order's current status and cumulative filled quantity.
	Poll(ctx context.Context, order *types.Order) (PollResult, error)
	// Cancel requests cancellation and reports whether the broker confirmed it.
	Cancel(ctx context.Context, order *types.Order) (bool, error)
}
