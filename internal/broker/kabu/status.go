package kabu

import (
	"strconv"
	"strings"

	"github.com/maeda-takumi/trade-kabu/internal/types"
)

// stateCodeStatuses maps kabu Station numeric order states onto the
// canonical set. 1 and 2 are queued/processing, 3 partially executed, 4
// fully executed; 5 through 8 are the terminal cancel-or-expire variants
// with 6 rejected.
var stateCodeStatuses = map[int]types.OrderStatus{
	1: types.OrderStatusSent,
	2: types.OrderStatusSent,
	3: types.OrderStatusPartial,
	4: types.OrderStatusFilled,
	5: types.OrderStatusCanceled,
	6: types.OrderStatusRejected,
	7: types.OrderStatusCanceled,
	8: types.OrderStatusCanceled,
}

// mapOrderStatus classifies one order record from the orders endpoint. Text
// states are matched first, then numeric state codes, then a cumulative
// quantity comparison. Anything the adapter cannot confidently classify is
// ERROR, never an assumed active status.
func mapOrderStatus(payload map[string]any) types.OrderStatus {
	stateText := strings.ToLower(stringField(payload, "State", "OrderState", "Status"))

	switch {
	case containsAny(stateText, "done", "filled", "約定", "complete"):
		return types.OrderStatusFilled
	case containsAny(stateText, "canceled", "cancel", "expired", "失効"):
		return types.OrderStatusCanceled
	case containsAny(stateText, "rejected", "reject", "却下"):
		return types.OrderStatusRejected
	case containsAny(stateText, "partial", "一部"):
		return types.OrderStatusPartial
	}

	if code, err := strconv.Atoi(stateText); err == nil {
		if status, ok := stateCodeStatuses[code]; ok {
			return status
		}
	}

	quantity, hasQuantity := floatField(payload, "Qty", "OrderQty")
	cumQty, hasCumQty := floatField(payload, "CumQty", "FilledQty", "ExecuteQty")

	if hasQuantity && quantity > 0 && hasCumQty {
		if cumQty >= quantity {
			return types.OrderStatusFilled
		}

		if cumQty > 0 {
			return types.OrderStatusPartial
		}
	}

	return types.OrderStatusError
}

// extractFilledQty reads the cumulative fill figure, zero when the broker
// reports none.
func extractFilledQty(payload map[string]any) float64 {
	value, ok := floatField(payload, "CumQty", "FilledQty", "ExecuteQty", "Filled")
	if !ok {
		return 0
	}

	return value
}

// findOrderPayload locates the record for orderID in an orders response,
// which may be a bare array, an object with a Details array, or a single
// object.
func findOrderPayload(orderID string, response any) map[string]any {
	switch value := response.(type) {
	case []any:
		return findInList(orderID, value)
	case map[string]any:
		if details, ok := value["Details"].([]any); ok {
			if found := findInList(orderID, details); len(found) > 0 {
				return found
			}
		}

		return value
	default:
		return map[string]any{}
	}
}

func findInList(orderID string, items []any) map[string]any {
	for _, item := range items {
		record, ok := item.(map[string]any)
		if !ok {
			continue
		}

		if stringField(record, "OrderId", "OrderID") == orderID {
			return record
		}
	}

	return map[string]any{}
}

// queryFailure detects an error reply from a query endpoint, which comes
// back as an object with a nonzero Result.
func queryFailure(response any) (int, string, bool) {
	record, ok := response.(map[string]any)
	if !ok {
		return 0, "", false
	}

	result, hasResult := floatField(record, "Result")
	if !hasResult || result == 0 {
		return 0, "", false
	}

	return int(result), stringField(record, "Msg", "Message"), true
}

func containsAny(text string, keys ...string) bool {
	for _, key := range keys {
		if key != "" && strings.Contains(text, key) {
			return true
		}
	}

	return false
}

// stringField returns the first present key rendered as a string.
func stringField(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		value, ok := payload[key]
		if !ok || value == nil {
			continue
		}

		switch typed := value.(type) {
		case string:
			if typed != "" {
				return typed
			}
		case float64:
			return strconv.FormatFloat(typed, 'f', -1, 64)
		}
	}

	return ""
}

// floatField returns the first present key coerced to a float.
func floatField(payload map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		value, ok := payload[key]
		if !ok || value == nil {
			continue
		}

		switch typed := value.(type) {
		case float64:
			return typed, true
		case string:
			if parsed, err := strconv.ParseFloat(typed, 64); err == nil {
				return parsed, true
			}
		}
	}

	return 0, false
}
