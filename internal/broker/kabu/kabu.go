// Package kabu implements the broker contract against the kabu Station
// HTTP/JSON API. The adapter owns everything the trader must not see: token
// lifecycle with a single retry after an authentication failure, wire payload
// construction with required-field validation before any network call, and
// fail-closed mapping of broker-native order states onto the canonical
// status set.
package kabu

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-resty/resty/v2"
	"github.com/maeda-takumi/trade-kabu/internal/broker"
	"github.com/maeda-takumi/trade-kabu/internal/logger"
	"github.com/maeda-takumi/trade-kabu/internal/types"
	"github.com/maeda-takumi/trade-kabu/pkg/errors"
	"go.uber.org/zap"
)

// DefaultTimeoutSec bounds every kabu Station round trip.
const DefaultTimeoutSec = 10.0

// Config holds the kabu Station connection settings.
type Config struct {
	// BaseURL is the kabu Station endpoint, e.g. http://localhost:18080.
	BaseURL string `yaml:"base_url" json:"base_url" validate:"required,url"`
	// APIPassword authenticates the token request.
	APIPassword string `yaml:"api_password" json:"api_password" validate:"required"`
	// TradingPassword authorizes order submission and cancellation.
	TradingPassword string  `yaml:"trading_password" json:"trading_password"`
	TimeoutSec      float64 `yaml:"timeout_sec" json:"timeout_sec" validate:"gte=0"`
}

// Validate validates the Config struct.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid kabu config", err)
	}

	return nil
}

// Broker talks to one kabu Station instance. Not safe for concurrent use;
// the trader drives it from a single goroutine.
type Broker struct {
	config Config
	client *resty.Client
	log    *logger.Logger
	token  string
}

// NewBroker creates a kabu Station adapter. No network call is made until
// the first order operation.
func NewBroker(config Config, log *logger.Logger) (*Broker, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	timeout := config.TimeoutSec
	if timeout <= 0 {
		timeout = DefaultTimeoutSec
	}

	client := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(time.Duration(timeout * float64(time.Second))).
		SetHeader("Content-Type", "application/json")

	return &Broker{
		config: config,
		client: client,
		log:    log,
	}, nil
}

// Submit implements broker.Broker. The payload is validated before any
// network call; a missing mandatory field never reaches the wire.
func (b *Broker) Submit(ctx context.Context, order *types.Order) (string, error) {
	payload, err := b.buildOrderPayload(order)
	if err != nil {
		return "", err
	}

	var response sendOrderResponse
	if err := b.requestJSON(ctx, http.MethodPost, "/kabusapi/sendorder", payload, &response); err != nil {
		return "", err
	}

	if response.Result != 0 {
		return "", errors.Newf(errors.ErrCodeBrokerRejected,
			"send order failed with result %d: %s", response.Result, response.message())
	}

	if response.OrderID == "" {
		return "", errors.New(errors.ErrCodeSubmitFailed, "send order response did not contain an order id")
	}

	b.log.Info("Order sent to kabu station",
		zap.String("order_id", response.OrderID),
		zap.String("role", string(order.Role)),
	)

	return response.OrderID, nil
}

// Poll implements broker.Broker. Broker-side query failures and states the
// adapter cannot confidently classify come back as OrderStatusError; only a
// transport failure is returned as an error.
func (b *Broker) Poll(ctx context.Context, order *types.Order) (broker.PollResult, error) {
	if order.OrderID == "" {
		return broker.PollResult{Status: types.OrderStatusError}, nil
	}

	var response any

	path := fmt.Sprintf("/kabusapi/orders?orderid=%s", order.OrderID)
	if err := b.requestJSON(ctx, http.MethodGet, path, nil, &response); err != nil {
		return broker.PollResult{}, err
	}

	if result, message, failed := queryFailure(response); failed {
		order.LastError = fmt.Sprintf("order query failed with result %d: %s", result, message)

		return broker.PollResult{Status: types.OrderStatusError}, nil
	}

	payload := findOrderPayload(order.OrderID, response)

	return broker.PollResult{
		Status:    mapOrderStatus(payload),
		FilledQty: extractFilledQty(payload),
	}, nil
}

// Cancel implements broker.Broker. A broker-declined cancel reports false
// with the reason captured on the order; only transport failures error.
func (b *Broker) Cancel(ctx context.Context, order *types.Order) (bool, error) {
	if order.OrderID == "" {
		return false, nil
	}

	password, err := b.tradingPassword()
	if err != nil {
		return false, err
	}

	payload := map[string]any{
		"OrderId":  order.OrderID,
		"Password": password,
	}

	var response sendOrderResponse
	if err := b.requestJSON(ctx, http.MethodPut, "/kabusapi/cancelorder", payload, &response); err != nil {
		return false, err
	}

	if response.Result != 0 {
		order.LastError = fmt.Sprintf("cancel failed with result %d: %s", response.Result, response.message())

		return false, nil
	}

	return true, nil
}

// sendOrderResponse covers both /sendorder and /cancelorder replies.
type sendOrderResponse struct {
	Result  int    `json:"Result"`
	OrderID string `json:"OrderId"`
	Msg     string `json:"Msg"`
	Message string `json:"Message"`
}

func (r *sendOrderResponse) message() string {
	if r.Msg != "" {
		return r.Msg
	}

	return r.Message
}

// requestJSON performs one authenticated API call. On a 401 the token is
// refreshed and the same call retried exactly once.
func (b *Broker) requestJSON(ctx context.Context, method, path string, payload, out any) error {
	if b.token == "" {
		if err := b.refreshToken(ctx); err != nil {
			return err
		}
	}

	response, err := b.execute(ctx, method, path, payload)
	if err != nil {
		return err
	}

	if response.StatusCode() == http.StatusUnauthorized {
		if err := b.refreshToken(ctx); err != nil {
			return err
		}

		response, err = b.execute(ctx, method, path, payload)
		if err != nil {
			return err
		}
	}

	if response.IsError() {
		return errors.Newf(errors.ErrCodeBrokerUnavailable,
			"kabu station api returned status %d: %s", response.StatusCode(), response.String())
	}

	if out == nil || len(response.Body()) == 0 {
		return nil
	}

	if err := json.Unmarshal(response.Body(), out); err != nil {
		return errors.Wrap(errors.ErrCodeBrokerUnavailable, "failed to decode kabu station response", err)
	}

	return nil
}

func (b *Broker) execute(ctx context.Context, method, path string, payload any) (*resty.Response, error) {
	request := b.client.R().SetContext(ctx)

	if b.token != "" {
		request.SetHeader("X-API-KEY", b.token)
	}

	if payload != nil {
		request.SetBody(payload)
	}

	response, err := request.Execute(method, path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeBrokerUnavailable, "kabu station api is unreachable", err)
	}

	return response, nil
}

// refreshToken fetches a new API token and keeps it for subsequent calls.
func (b *Broker) refreshToken(ctx context.Context) error {
	response, err := b.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"APIPassword": b.config.APIPassword}).
		Post("/kabusapi/token")
	if err != nil {
		return errors.Wrap(errors.ErrCodeBrokerUnavailable, "kabu station api is unreachable", err)
	}

	if response.IsError() {
		return errors.Newf(errors.ErrCodeAuthFailed, "token request failed with status %d", response.StatusCode())
	}

	var body struct {
		Token string `json:"Token"`
	}

	if err := json.Unmarshal(response.Body(), &body); err != nil {
		return errors.Wrap(errors.ErrCodeAuthFailed, "failed to decode token response", err)
	}

	if body.Token == "" {
		return errors.New(errors.ErrCodeAuthFailed, "token response did not contain a token")
	}

	b.token = body.Token

	return nil
}

func (b *Broker) tradingPassword() (string, error) {
	if b.config.TradingPassword == "" {
		return "", errors.New(errors.ErrCodeInvalidConfiguration, "trading password is not configured")
	}

	return b.config.TradingPassword, nil
}

// Ensure Broker implements the broker contract.
var _ broker.Broker = (*Broker)(nil)
