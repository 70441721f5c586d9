package kabu

import (
	"strings"

	"github.com/maeda-takumi/trade-kabu/internal/types"
	"github.com/maeda-takumi/trade-kabu/pkg/errors"
)

// kabu Station FrontOrderType execution condition codes.
const (
	frontOrderTypeMarket    = 10
	frontOrderTypeLimit     = 20
	frontOrderTypeStop      = 30
	frontOrderTypeStopLimit = 32
)

// UnderOver codes for the ReverseLimitOrder trigger direction.
const (
	underOverOver  = 1
	underOverUnder = 2
)

var frontOrderTypes = map[types.OrderType]int{
	types.OrderTypeMarket: frontOrderTypeMarket,
	types.OrderTypeLimit:  frontOrderTypeLimit,
	types.OrderTypeStop:   frontOrderTypeStop,
}

// limit execution conditions require a Price, stop conditions a
// ReverseLimitOrder block.
var (
	limitFrontOrderTypes = map[int]bool{20: true, 21: true, 22: true, 24: true, 32: true}
	stopFrontOrderTypes  = map[int]bool{30: true, 31: true, 32: true}
)

// sideCode maps the canonical side onto kabu Station's code: 1 buy, 2 sell.
func sideCode(side types.Side) int {
	switch side {
	case types.SideBuy:
		return 1
	case types.SideSell:
		return 2
	default:
		return 0
	}
}

// buildOrderPayload constructs the /kabusapi/sendorder body. Every mandatory
// field is checked here so an incomplete order fails before the network.
func (b *Broker) buildOrderPayload(order *types.Order) (map[string]any, error) {
	password, err := b.tradingPassword()
	if err != nil {
		return nil, err
	}

	frontOrderType, ok := frontOrderTypes[order.Type]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeInvalidOrder, "unsupported order type %s", order.Type)
	}

	var missing []string

	if order.Symbol == "" {
		missing = append(missing, "Symbol")
	}

	if order.Exchange == 0 {
		missing = append(missing, "Exchange")
	}

	if sideCode(order.Side) == 0 {
		missing = append(missing, "Side")
	}

	if order.CashMargin == 0 {
		missing = append(missing, "CashMargin")
	}

	if order.Quantity <= 0 {
		missing = append(missing, "Qty")
	}

	if order.CashMargin == 2 && order.MarginTradeType == 0 {
		missing = append(missing, "MarginTradeType")
	}

	if len(missing) > 0 {
		return nil, errors.Newf(errors.ErrCodeMissingOrderField,
			"order is missing required fields: %s", strings.Join(missing, ", "))
	}

	payload := map[string]any{
		"Password":       password,
		"Symbol":         order.Symbol,
		"Exchange":       order.Exchange,
		"Side":           sideCode(order.Side),
		"CashMargin":     order.CashMargin,
		"Qty":            order.Quantity,
		"FrontOrderType": frontOrderType,
	}

	if order.MarginTradeType != 0 {
		payload["MarginTradeType"] = order.MarginTradeType
	}

	if order.AccountType != 0 {
		payload["AccountType"] = order.AccountType
	}

	if order.ExpireDay != 0 {
		payload["ExpireDay"] = order.ExpireDay
	}

	if order.Price > 0 {
		payload["Price"] = order.Price
	}

	if order.TimeInForce != "" {
		payload["TimeInForce"] = order.TimeInForce
	}

	if len(order.ClosePositions) > 0 {
		closePositions := make([]map[string]any, 0, len(order.ClosePositions))

		for _, position := range order.ClosePositions {
			if position.HoldID == "" || position.Quantity <= 0 {
				return nil, errors.New(errors.ErrCodeMissingOrderField,
					"close positions require both HoldID and Qty")
			}

			closePositions = append(closePositions, map[string]any{
				"HoldID": position.HoldID,
				"Qty":    position.Quantity,
			})
		}

		payload["ClosePositions"] = closePositions
	}

	if order.TriggerPrice > 0 {
		reverseLimit, err := buildReverseLimit(order)
		if err != nil {
			return nil, err
		}

		payload["ReverseLimitOrder"] = reverseLimit
	}

	if err := validateOrderPayload(payload, frontOrderType); err != nil {
		return nil, err
	}

	return payload, nil
}

func buildReverseLimit(order *types.Order) (map[string]any, error) {
	var underOver int

	switch order.TriggerDirection {
	case types.TriggerOver:
		underOver = underOverOver
	case types.TriggerUnder:
		underOver = underOverUnder
	default:
		return nil, errors.New(errors.ErrCodeMissingOrderField,
			"stop orders require a trigger direction")
	}

	afterHitType, ok := frontOrderTypes[order.AfterHitType]
	if !ok {
		return nil, errors.New(errors.ErrCodeMissingOrderField,
			"stop orders require an after-hit order type")
	}

	reverseLimit := map[string]any{
		"TriggerPrice":      order.TriggerPrice,
		"UnderOver":         underOver,
		"AfterHitOrderType": afterHitType,
	}

	if order.AfterHitPrice > 0 {
		reverseLimit["AfterHitPrice"] = order.AfterHitPrice
	}

	return reverseLimit, nil
}

func validateOrderPayload(payload map[string]any, frontOrderType int) error {
	if limitFrontOrderTypes[frontOrderType] {
		if _, ok := payload["Price"]; !ok {
			return errors.New(errors.ErrCodeMissingOrderField, "limit orders require a price")
		}
	}

	if stopFrontOrderTypes[frontOrderType] {
		if _, ok := payload["ReverseLimitOrder"]; !ok {
			return errors.New(errors.ErrCodeMissingOrderField, "stop orders require a reverse limit block")
		}
	}

	if frontOrderType == frontOrderTypeStopLimit {
		reverseLimit, _ := payload["ReverseLimitOrder"].(map[string]any)
		if _, ok := reverseLimit["AfterHitPrice"]; !ok {
			return errors.New(errors.ErrCodeMissingOrderField, "stop limit orders require an after-hit price")
		}
	}

	return nil
}
