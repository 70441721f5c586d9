package trader

import "github.com/maeda-takumi/trade-kabu/internal/types"

// Callbacks carry trade progress out to the embedding console or CLI. Every
// field is optional; nil callbacks are skipped. Callbacks are notifications
// only and must not call back into the trader.
type Callbacks struct {
	// OnStateChange fires on every trader state transition.
	OnStateChange func(from, to types.TraderState)
	// OnExitLegStatus fires whenever a profit or loss leg's status changes.
	OnExitLegStatus func(role types.OrderRole, status types.OrderStatus)
	// OnFinished fires once when the trader reaches a terminal state.
	OnFinished func(final types.TraderState)
}
