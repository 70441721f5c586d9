package broker

import (
	"context"
	"strconv"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/maeda-takumi/trade-kabu/internal/logger"
	"github.com/maeda-takumi/trade-kabu/internal/types"
	"github.com/maeda-takumi/trade-kabu/pkg/errors"
	"go.uber.org/zap"
)

// binanceQuantityPrecision is the fallback decimal precision for quantity
// and price formatting. Production systems should use symbol-specific
// precision from Binance exchange info (LOT_SIZE, PRICE_FILTER).
const binanceQuantityPrecision = 8

// Service interfaces wrapping the Binance SDK so the adapter is testable
// without the network.

// CreateOrderService interface for submitting orders.
type CreateOrderService interface {
	Symbol(symbol string) CreateOrderService
	Side(side binance.SideType) CreateOrderService
	Type(orderType binance.OrderType) CreateOrderService
	Quantity(quantity string) CreateOrderService
	Price(price string) CreateOrderService
	StopPrice(stopPrice string) CreateOrderService
	TimeInForce(tif binance.TimeInForceType) CreateOrderService
	Do(ctx context.Context) (*binance.CreateOrderResponse, error)
}

// GetOrderService interface for querying one order.
type GetOrderService interface {
	Symbol(symbol string) GetOrderService
	OrderID(orderID int64) GetOrderService
	Do(ctx context.Context) (*binance.Order, error)
}

// CancelOrderService interface for canceling orders.
type CancelOrderService interface {
	Symbol(symbol string) CancelOrderService
	OrderID(orderID int64) CancelOrderService
	Do(ctx context.Context) (*binance.CancelOrderResponse, error)
}

// BinanceClient abstracts the Binance client for testing.
type BinanceClient interface {
	NewCreateOrderService() CreateOrderService
	NewGetOrderService() GetOrderService
	NewCancelOrderService() CancelOrderService
}

// realBinanceClient wraps the actual binance.Client.
type realBinanceClient struct {
	client *binance.Client
}

func (r *realBinanceClient) NewCreateOrderService() CreateOrderService {
	return &realCreateOrderService{service: r.client.NewCreateOrderService()}
}

func (r *realBinanceClient) NewGetOrderService() GetOrderService {
	return &realGetOrderService{service: r.client.NewGetOrderService()}
}

func (r *realBinanceClient) NewCancelOrderService() CancelOrderService {
	return &realCancelOrderService{service: r.client.NewCancelOrderService()}
}

type realCreateOrderService struct {
	service *binance.CreateOrderService
}

func (s *realCreateOrderService) Symbol(symbol string) CreateOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCreateOrderService) Side(side binance.SideType) CreateOrderService {
	s.service = s.service.Side(side)

	return s
}

func (s *realCreateOrderService) Type(orderType binance.OrderType) CreateOrderService {
	s.service = s.service.Type(orderType)

	return s
}

func (s *realCreateOrderService) Quantity(quantity string) CreateOrderService {
	s.service = s.service.Quantity(quantity)

	return s
}

func (s *realCreateOrderService) Price(price string) CreateOrderService {
	s.service = s.service.Price(price)

	return s
}

func (s *realCreateOrderService) StopPrice(stopPrice string) CreateOrderService {
	s.service = s.service.StopPrice(stopPrice)

	return s
}

func (s *realCreateOrderService) TimeInForce(tif binance.TimeInForceType) CreateOrderService {
	s.service = s.service.TimeInForce(tif)

	return s
}

func (s *realCreateOrderService) Do(ctx context.Context) (*binance.CreateOrderResponse, error) {
	return s.service.Do(ctx)
}

type realGetOrderService struct {
	service *binance.GetOrderService
}

func (s *realGetOrderService) Symbol(symbol string) GetOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realGetOrderService) OrderID(orderID int64) GetOrderService {
	s.service = s.service.OrderID(orderID)

	return s
}

func (s *realGetOrderService) Do(ctx context.Context) (*binance.Order, error) {
	return s.service.Do(ctx)
}

type realCancelOrderService struct {
	service *binance.CancelOrderService
}

func (s *realCancelOrderService) Symbol(symbol string) CancelOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCancelOrderService) OrderID(orderID int64) CancelOrderService {
	s.service = s.service.OrderID(orderID)

	return s
}

func (s *realCancelOrderService) Do(ctx context.Context) (*binance.CancelOrderResponse, error) {
	return s.service.Do(ctx)
}

// BinanceBroker implements the broker contract against Binance spot.
type BinanceBroker struct {
	client BinanceClient
	log    *logger.Logger
}

// NewBinanceBroker creates a Binance spot adapter.
func NewBinanceBroker(apiKey, secretKey string, log *logger.Logger) *BinanceBroker {
	return &BinanceBroker{
		client: &realBinanceClient{client: binance.NewClient(apiKey, secretKey)},
		log:    log,
	}
}

// newBinanceBrokerWithClient is used by tests to inject a fake client.
func newBinanceBrokerWithClient(client BinanceClient, log *logger.Logger) *BinanceBroker {
	return &BinanceBroker{
		client: client,
		log:    log,
	}
}

// Submit implements Broker. Field requirements are checked before the SDK
// call: limit orders need a price, stop orders a trigger price.
func (b *BinanceBroker) Submit(ctx context.Context, order *types.Order) (string, error) {
	if order.Symbol == "" {
		return "", errors.New(errors.ErrCodeMissingOrderField, "order is missing required fields: Symbol")
	}

	side, err := binanceSide(order.Side)
	if err != nil {
		return "", err
	}

	service := b.client.NewCreateOrderService().
		Symbol(order.Symbol).
		Side(side).
		Quantity(formatDecimal(order.Quantity))

	switch order.Type {
	case types.OrderTypeMarket:
		service = service.Type(binance.OrderTypeMarket)
	case types.OrderTypeLimit:
		if order.Price <= 0 {
			return "", errors.New(errors.ErrCodeMissingOrderField, "limit orders require a price")
		}

		service = service.Type(binance.OrderTypeLimit).
			Price(formatDecimal(order.Price)).
			TimeInForce(binance.TimeInForceTypeGTC)
	case types.OrderTypeStop:
		if order.TriggerPrice <= 0 {
			return "", errors.New(errors.ErrCodeMissingOrderField, "stop orders require a trigger price")
		}

		service = service.Type(binance.OrderTypeStopLoss).
			StopPrice(formatDecimal(order.TriggerPrice))
	default:
		return "", errors.Newf(errors.ErrCodeInvalidOrder, "unsupported order type %s", order.Type)
	}

	response, err := service.Do(ctx)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeSubmitFailed, "binance order submission failed", err)
	}

	orderID := strconv.FormatInt(response.OrderID, 10)

	b.log.Info("Order sent to binance",
		zap.String("order_id", orderID),
		zap.String("symbol", order.Symbol),
		zap.String("role", string(order.Role)),
	)

	return orderID, nil
}

// Poll implements Broker with a fail-closed mapping of Binance order states.
func (b *BinanceBroker) Poll(ctx context.Context, order *types.Order) (PollResult, error) {
	if order.OrderID == "" {
		return PollResult{Status: types.OrderStatusError}, nil
	}

	orderID, err := strconv.ParseInt(order.OrderID, 10, 64)
	if err != nil {
		order.LastError = "broker identifier is not a binance order id"

		return PollResult{Status: types.OrderStatusError}, nil
	}

	binanceOrder, err := b.client.NewGetOrderService().
		Symbol(order.Symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return PollResult{}, errors.Wrap(errors.ErrCodePollFailed, "binance order query failed", err)
	}

	filledQty, _ := strconv.ParseFloat(binanceOrder.ExecutedQuantity, 64)

	return PollResult{
		Status:    mapBinanceStatus(binanceOrder.Status),
		FilledQty: filledQty,
	}, nil
}

// Cancel implements Broker. A Binance API rejection is a declined cancel,
// not a transport failure.
func (b *BinanceBroker) Cancel(ctx context.Context, order *types.Order) (bool, error) {
	if order.OrderID == "" {
		return false, nil
	}

	orderID, err := strconv.ParseInt(order.OrderID, 10, 64)
	if err != nil {
		return false, nil
	}

	_, err = b.client.NewCancelOrderService().
		Symbol(order.Symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) {
			order.LastError = apiErr.Message

			return false, nil
		}

		return false, errors.Wrap(errors.ErrCodeCancelFailed, "binance cancel request failed", err)
	}

	return true, nil
}

func binanceSide(side types.Side) (binance.SideType, error) {
	switch side {
	case types.SideBuy:
		return binance.SideTypeBuy, nil
	case types.SideSell:
		return binance.SideTypeSell, nil
	default:
		return "", errors.New(errors.ErrCodeMissingOrderField, "order is missing required fields: Side")
	}
}

func mapBinanceStatus(status binance.OrderStatusType) types.OrderStatus {
	switch status {
	case binance.OrderStatusTypeNew:
		return types.OrderStatusSent
	case binance.OrderStatusTypePartiallyFilled:
		return types.OrderStatusPartial
	case binance.OrderStatusTypeFilled:
		return types.OrderStatusFilled
	case binance.OrderStatusTypeCanceled, binance.OrderStatusTypeExpired:
		return types.OrderStatusCanceled
	case binance.OrderStatusTypePendingCancel:
		return types.OrderStatusSent
	case binance.OrderStatusTypeRejected:
		return types.OrderStatusRejected
	default:
		return types.OrderStatusError
	}
}

func formatDecimal(value float64) string {
	return strconv.FormatFloat(value, 'f', binanceQuantityPrecision, 64)
}

// Ensure BinanceBroker implements Broker.
var _ Broker = (*BinanceBroker)(nil)
