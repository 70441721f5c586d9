package store

import (
	"context"
	"testing"

	"github.com/maeda-takumi/trade-kabu/internal/logger"
	"github.com/maeda-takumi/trade-kabu/internal/types"
	"github.com/stretchr/testify/suite"
)

type DuckDBStoreTestSuite struct {
	suite.Suite
	store *DuckDBStore
	ctx   context.Context
}

func TestDuckDBStoreSuite(t *testing.T) {
	suite.Run(t, new(DuckDBStoreTestSuite))
}

func (s *DuckDBStoreTestSuite) SetupTest() {
	store, err := NewDuckDBStore(":memory:", logger.NewNopLogger())
	s.Require().NoError(err)

	s.store = store
	s.ctx = context.Background()
}

func (s *DuckDBStoreTestSuite) TearDownTest() {
	if s.store != nil {
		s.store.Close()
	}
}

func (s *DuckDBStoreTestSuite) sentOrder(orderID string) types.Order {
	order := types.NewOrder(types.RoleEntry, types.OrderTypeLimit, 100)
	order.Symbol = "7203"
	order.Side = types.SideBuy
	order.Price = 1500
	order.OrderID = orderID
	order.Status = types.OrderStatusSent

	return order
}

func (s *DuckDBStoreTestSuite) TestInsertAndGetOrder() {
	order := s.sentOrder("ORD-1")

	s.Require().NoError(s.store.InsertOrder(s.ctx, &order))

	got, err := s.store.GetOrder(s.ctx, "ORD-1")
	s.Require().NoError(err)
	s.Equal(order.ID, got.ID)
	s.Equal(types.RoleEntry, got.Role)
	s.Equal(types.OrderTypeLimit, got.Type)
	s.Equal("7203", got.Symbol)
	s.Equal(types.SideBuy, got.Side)
	s.Equal(float64(100), got.Quantity)
	s.Equal(float64(1500), got.Price)
	s.Equal(types.OrderStatusSent, got.Status)
}

func (s *DuckDBStoreTestSuite) TestInsertIsIdempotentByOrderID() {
	order := s.sentOrder("ORD-1")
	s.Require().NoError(s.store.InsertOrder(s.ctx, &order))

	changed := order
	changed.Quantity = 999
	s.Require().NoError(s.store.InsertOrder(s.ctx, &changed))

	got, err := s.store.GetOrder(s.ctx, "ORD-1")
	s.Require().NoError(err)
	s.Equal(float64(100), got.Quantity)

	orders, err := s.store.ListOrders(s.ctx)
	s.Require().NoError(err)
	s.Len(orders, 1)
}

func (s *DuckDBStoreTestSuite) TestInsertSkipsOrdersWithoutIdentifier() {
	order := types.NewOrder(types.RoleEntry, types.OrderTypeMarket, 100)

	s.Require().NoError(s.store.InsertOrder(s.ctx, &order))

	orders, err := s.store.ListOrders(s.ctx)
	s.Require().NoError(err)
	s.Empty(orders)
}

func (s *DuckDBStoreTestSuite) TestUpdateStatus() {
	order := s.sentOrder("ORD-1")
	s.Require().NoError(s.store.InsertOrder(s.ctx, &order))

	s.Require().NoError(s.store.UpdateStatus(s.ctx, "ORD-1", types.OrderStatusFilled, 100))

	got, err := s.store.GetOrder(s.ctx, "ORD-1")
	s.Require().NoError(err)
	s.Equal(types.OrderStatusFilled, got.Status)
	s.Equal(float64(100), got.FilledQty)
}

func (s *DuckDBStoreTestSuite) TestUpdateStatusWithoutIdentifierIsNoOp() {
	s.Require().NoError(s.store.UpdateStatus(s.ctx, "", types.OrderStatusFilled, 100))
}

func (s *DuckDBStoreTestSuite) TestGetOrderNotFound() {
	_, err := s.store.GetOrder(s.ctx, "missing")
	s.Error(err)
}

func (s *DuckDBStoreTestSuite) TestListOrdersInCreationOrder() {
	first := s.sentOrder("ORD-1")
	s.Require().NoError(s.store.InsertOrder(s.ctx, &first))

	second := types.NewOrder(types.RoleExitLoss, types.OrderTypeStop, 100)
	second.OrderID = "ORD-2"
	second.Status = types.OrderStatusSent
	second.CreatedAt = first.CreatedAt.Add(1)
	s.Require().NoError(s.store.InsertOrder(s.ctx, &second))

	orders, err := s.store.ListOrders(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(orders, 2)
	s.Equal("ORD-1", orders[0].OrderID)
	s.Equal("ORD-2", orders[1].OrderID)
}
