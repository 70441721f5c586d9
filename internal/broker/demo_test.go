package broker

import (
	"context"
	"testing"

	"github.com/maeda-takumi/trade-kabu/internal/types"
	"github.com/stretchr/testify/suite"
)

type DemoBrokerTestSuite struct {
	suite.Suite
	broker *DemoBroker
	ctx    context.Context
}

func TestDemoBrokerSuite(t *testing.T) {
	suite.Run(t, new(DemoBrokerTestSuite))
}

func (s *DemoBrokerTestSuite) SetupTest() {
	s.broker = NewDemoBroker(2)
	s.ctx = context.Background()
}

func (s *DemoBrokerTestSuite) submitted(role types.OrderRole, qty float64) *types.Order {
	order := types.NewOrder(role, types.OrderTypeMarket, qty)

	id, err := s.broker.Submit(s.ctx, &order)
	s.Require().NoError(err)

	order.OrderID = id
	order.Status = types.OrderStatusSent

	return &order
}

func (s *DemoBrokerTestSuite) TestSubmitAssignsSequentialIDs() {
	first := s.submitted(types.RoleEntry, 100)
	second := s.submitted(types.RoleExitLoss, 100)

	s.Equal("DEMO-1", first.OrderID)
	s.Equal("DEMO-2", second.OrderID)
}

func (s *DemoBrokerTestSuite) TestFillsAfterConfiguredPolls() {
	order := s.submitted(types.RoleEntry, 100)

	for i := 0; i < 2; i++ {
		result, err := s.broker.Poll(s.ctx, order)
		s.Require().NoError(err)
		s.Equal(types.OrderStatusSent, result.Status)
	}

	result, err := s.broker.Poll(s.ctx, order)
	s.Require().NoError(err)
	s.Equal(types.OrderStatusFilled, result.Status)
	s.Equal(float64(100), result.FilledQty)
}

func (s *DemoBrokerTestSuite) TestProfitLegFillsOnePollLater() {
	loss := s.submitted(types.RoleExitLoss, 100)
	profit := s.submitted(types.RoleExitProfit, 100)

	for i := 0; i < 2; i++ {
		lossResult, err := s.broker.Poll(s.ctx, loss)
		s.Require().NoError(err)
		s.Equal(types.OrderStatusSent, lossResult.Status)

		profitResult, err := s.broker.Poll(s.ctx, profit)
		s.Require().NoError(err)
		s.Equal(types.OrderStatusSent, profitResult.Status)
	}

	lossResult, err := s.broker.Poll(s.ctx, loss)
	s.Require().NoError(err)
	s.Equal(types.OrderStatusFilled, lossResult.Status)

	profitResult, err := s.broker.Poll(s.ctx, profit)
	s.Require().NoError(err)
	s.Equal(types.OrderStatusSent, profitResult.Status)
}

func (s *DemoBrokerTestSuite) TestPollWithoutIdentifierFailsClosed() {
	order := types.NewOrder(types.RoleEntry, types.OrderTypeMarket, 100)

	result, err := s.broker.Poll(s.ctx, &order)
	s.Require().NoError(err)
	s.Equal(types.OrderStatusError, result.Status)
}

func (s *DemoBrokerTestSuite) TestCancelAlwaysSucceeds() {
	order := s.submitted(types.RoleExitProfit, 100)

	ok, err := s.broker.Cancel(s.ctx, order)
	s.Require().NoError(err)
	s.True(ok)
}

func (s *DemoBrokerTestSuite) TestFillsAfterPollsFloor() {
	broker := NewDemoBroker(0)
	s.Equal(DefaultFillsAfterPolls, broker.fillsAfterPolls)
}
