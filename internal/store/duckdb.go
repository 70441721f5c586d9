package store

import (
	"context"
	"database/sql"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/maeda-takumi/trade-kabu/internal/logger"
	"github.com/maeda-takumi/trade-kabu/internal/types"
	"github.com/maeda-takumi/trade-kabu/pkg/errors"
	"go.uber.org/zap"
)

// DuckDBStore implements OrderStore on an embedded DuckDB database.
type DuckDBStore struct {
	db  *sql.DB
	log *logger.Logger
	sq  squirrel.StatementBuilderType
}

// NewDuckDBStore opens (or creates) the database at path and ensures the
// orders table exists. Use ":memory:" for an ephemeral store.
func NewDuckDBStore(path string, log *logger.Logger) (*DuckDBStore, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreInitFailed, "failed to open duckdb database", err)
	}

	s := &DuckDBStore{
		db:  db,
		log: log,
		sq:  squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}

	if err := s.initialize(); err != nil {
		db.Close()

		return nil, err
	}

	return s, nil
}

func (s *DuckDBStore) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			client_id TEXT,
			role TEXT NOT NULL,
			order_type TEXT NOT NULL,
			symbol TEXT,
			side TEXT,
			quantity DOUBLE NOT NULL,
			price DOUBLE,
			trigger_price DOUBLE,
			trigger_direction TEXT,
			filled_qty DOUBLE,
			status TEXT NOT NULL,
			last_error TEXT,
			created_at TIMESTAMP NOT NULL
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreInitFailed, "failed to create orders table", err)
	}

	return nil
}

// InsertOrder implements OrderStore. Duplicate broker identifiers are
// ignored so a retried insert never fails the trade.
func (s *DuckDBStore) InsertOrder(ctx context.Context, order *types.Order) error {
	if order.OrderID == "" {
		return nil
	}

	query, args, err := s.sq.
		Insert("orders").
		Columns(
			"order_id", "client_id", "role", "order_type", "symbol", "side",
			"quantity", "price", "trigger_price", "trigger_direction",
			"filled_qty", "status", "last_error", "created_at",
		).
		Values(
			order.OrderID, order.ID, string(order.Role), string(order.Type),
			order.Symbol, string(order.Side), order.Quantity, order.Price,
			order.TriggerPrice, string(order.TriggerDirection),
			order.FilledQty, string(order.Status), order.LastError, order.CreatedAt,
		).
		Suffix("ON CONFLICT (order_id) DO NOTHING").
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreInsertFailed, "failed to build insert query", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(errors.ErrCodeStoreInsertFailed, "failed to insert order", err)
	}

	s.log.Debug("Order persisted",
		zap.String("order_id", order.OrderID),
		zap.String("role", string(order.Role)),
	)

	return nil
}

// UpdateStatus implements OrderStore.
func (s *DuckDBStore) UpdateStatus(ctx context.Context, orderID string, status types.OrderStatus, filledQty float64) error {
	if orderID == "" {
		return nil
	}

	query, args, err := s.sq.
		Update("orders").
		Set("status", string(status)).
		Set("filled_qty", filledQty).
		Where(squirrel.Eq{"order_id": orderID}).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeStoreUpdateFailed, "failed to build update query", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrap(errors.ErrCodeStoreUpdateFailed, "failed to update order status", err)
	}

	return nil
}

// GetOrder returns the stored record for the given broker identifier.
func (s *DuckDBStore) GetOrder(ctx context.Context, orderID string) (types.Order, error) {
	query, args, err := s.selectOrders().
		Where(squirrel.Eq{"order_id": orderID}).
		ToSql()
	if err != nil {
		return types.Order{}, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to build select query", err)
	}

	row := s.db.QueryRowContext(ctx, query, args...)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Order{}, errors.Newf(errors.ErrCodeStoreQueryFailed, "order %s not found", orderID)
		}

		return types.Order{}, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to scan order", err)
	}

	return order, nil
}

// ListOrders returns every stored order in creation order.
func (s *DuckDBStore) ListOrders(ctx context.Context) ([]types.Order, error) {
	query, args, err := s.selectOrders().
		OrderBy("created_at ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to build select query", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to query orders", err)
	}
	defer rows.Close()

	orders := make([]types.Order, 0)

	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to scan order", err)
		}

		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStoreQueryFailed, "failed to iterate orders", err)
	}

	return orders, nil
}

// Close releases the database handle.
func (s *DuckDBStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}

	return nil
}

func (s *DuckDBStore) selectOrders() squirrel.SelectBuilder {
	return s.sq.Select(
		"order_id", "client_id", "role", "order_type", "symbol", "side",
		"quantity", "price", "trigger_price", "trigger_direction",
		"filled_qty", "status", "last_error", "created_at",
	).From("orders")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (types.Order, error) {
	var order types.Order

	var role, orderType, side, triggerDir, status string

	err := row.Scan(
		&order.OrderID, &order.ID, &role, &orderType, &order.Symbol, &side,
		&order.Quantity, &order.Price, &order.TriggerPrice, &triggerDir,
		&order.FilledQty, &status, &order.LastError, &order.CreatedAt,
	)
	if err != nil {
		return types.Order{}, err
	}

	order.Role = types.OrderRole(role)
	order.Type = types.OrderType(orderType)
	order.Side = types.Side(side)
	order.TriggerDirection = types.TriggerDirection(triggerDir)
	order.Status = types.OrderStatus(status)

	return order, nil
}

// Ensure DuckDBStore implements OrderStore.
var _ OrderStore = (*DuckDBStore)(nil)
