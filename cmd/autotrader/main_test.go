package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/maeda-takumi/trade-kabu/internal/broker"
	"github.com/maeda-takumi/trade-kabu/internal/broker/kabu"
	"github.com/maeda-takumi/trade-kabu/internal/logger"
	"github.com/maeda-takumi/trade-kabu/internal/types"
	"github.com/stretchr/testify/suite"
)

type RepayPositionsTestSuite struct {
	suite.Suite
	ctx context.Context
}

func TestRepayPositionsSuite(t *testing.T) {
	suite.Run(t, new(RepayPositionsTestSuite))
}

func (s *RepayPositionsTestSuite) SetupTest() {
	s.ctx = context.Background()
}

func (s *RepayPositionsTestSuite) marginOrder() types.Order {
	order := types.NewOrder(types.RoleEntry, types.OrderTypeMarket, 100)
	order.Symbol = "7203"
	order.Side = types.SideBuy
	order.Exchange = 1
	order.CashMargin = 2

	return order
}

func (s *RepayPositionsTestSuite) TestMarginEntryGetsClosePositionsFromHoldings() {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/kabusapi/token":
			json.NewEncoder(w).Encode(map[string]string{"Token": "tok-1"})
		case "/kabusapi/positions":
			json.NewEncoder(w).Encode([]map[string]any{
				{"HoldID": "H-1", "Symbol": "7203", "Side": 1, "Qty": 60},
				{"HoldID": "H-2", "Symbol": "7203", "Side": 1, "Qty": 100},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	kabuBroker, err := kabu.NewBroker(kabu.Config{
		BaseURL:         server.URL,
		APIPassword:     "api-pass",
		TradingPassword: "trade-pass",
	}, logger.NewNopLogger())
	s.Require().NoError(err)

	order := s.marginOrder()
	s.Require().NoError(resolveRepayPositions(s.ctx, kabuBroker, &order))

	s.Require().Len(order.ClosePositions, 2)
	s.Equal(types.ClosePosition{HoldID: "H-1", Quantity: 60}, order.ClosePositions[0])
	s.Equal(types.ClosePosition{HoldID: "H-2", Quantity: 40}, order.ClosePositions[1])
}

func (s *RepayPositionsTestSuite) TestCashOrderSkipsResolution() {
	demoBroker := broker.NewDemoBroker(broker.DefaultFillsAfterPolls)

	order := s.marginOrder()
	order.CashMargin = 1

	s.Require().NoError(resolveRepayPositions(s.ctx, demoBroker, &order))
	s.Empty(order.ClosePositions)
}

func (s *RepayPositionsTestSuite) TestNonKabuBrokerIsLeftUntouched() {
	demoBroker := broker.NewDemoBroker(broker.DefaultFillsAfterPolls)

	order := s.marginOrder()

	s.Require().NoError(resolveRepayPositions(s.ctx, demoBroker, &order))
	s.Empty(order.ClosePositions)
}

func (s *RepayPositionsTestSuite) TestPreassignedClosePositionsAreKept() {
	demoBroker := broker.NewDemoBroker(broker.DefaultFillsAfterPolls)

	order := s.marginOrder()
	order.ClosePositions = []types.ClosePosition{{HoldID: "H-9", Quantity: 100}}

	s.Require().NoError(resolveRepayPositions(s.ctx, demoBroker, &order))
	s.Equal("H-9", order.ClosePositions[0].HoldID)
}
