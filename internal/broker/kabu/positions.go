package kabu

import (
	"context"
	"net/http"

	"github.com/maeda-takumi/trade-kabu/internal/types"
	"github.com/maeda-takumi/trade-kabu/pkg/errors"
)

// ResolveClosePositions builds the ClosePositions list for a margin repay
// order from the positions endpoint, consuming held positions oldest first
// until the requested quantity is covered. Positions for other symbols are
// ignored; positions without a matching side are used only when nothing
// matches the side.
func (b *Broker) ResolveClosePositions(ctx context.Context, symbol string, side types.Side, quantity float64) ([]types.ClosePosition, error) {
	var response any
	if err := b.requestJSON(ctx, http.MethodGet, "/kabusapi/positions", nil, &response); err != nil {
		return nil, err
	}

	positions := extractPositions(response)

	if symbol != "" {
		filtered := positions[:0]

		for _, position := range positions {
			if stringField(position, "Symbol", "SymbolCode", "StockCode", "Code") == symbol {
				filtered = append(filtered, position)
			}
		}

		positions = filtered
	}

	matched := make([]map[string]any, 0, len(positions))

	for _, position := range positions {
		positionSide, ok := floatField(position, "Side", "BuySell", "SideCode")
		if !ok || int(positionSide) == sideCode(side) {
			matched = append(matched, position)
		}
	}

	if len(matched) == 0 {
		matched = positions
	}

	remaining := quantity
	closePositions := make([]types.ClosePosition, 0, len(matched))

	for _, position := range matched {
		if remaining <= 0 {
			break
		}

		holdID := stringField(position, "HoldID", "HoldId", "ID", "Id")
		positionQty, _ := floatField(position, "Qty", "HoldQty", "LeavesQty", "PositionQty")

		if holdID == "" || positionQty <= 0 {
			continue
		}

		useQty := positionQty
		if useQty > remaining {
			useQty = remaining
		}

		closePositions = append(closePositions, types.ClosePosition{
			HoldID:   holdID,
			Quantity: useQty,
		})
		remaining -= useQty
	}

	if remaining > 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidOrder,
			"held positions cover only %.0f of the requested %.0f", quantity-remaining, quantity)
	}

	return closePositions, nil
}

func extractPositions(response any) []map[string]any {
	var items []any

	switch value := response.(type) {
	case []any:
		items = value
	case map[string]any:
		if details, ok := value["Details"].([]any); ok {
			items = details
		} else if positions, ok := value["Positions"].([]any); ok {
			items = positions
		}
	}

	positions := make([]map[string]any, 0, len(items))

	for _, item := range items {
		if record, ok := item.(map[string]any); ok {
			positions = append(positions, record)
		}
	}

	return positions
}
