package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maeda-takumi/trade-kabu/internal/broker"
	"github.com/maeda-takumi/trade-kabu/internal/broker/kabu"
	"github.com/maeda-takumi/trade-kabu/internal/logger"
	"github.com/maeda-takumi/trade-kabu/internal/store"
	"github.com/maeda-takumi/trade-kabu/internal/trader"
	"github.com/maeda-takumi/trade-kabu/internal/types"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "autotrader",
		Usage: "Run one automated bracket trade from entry to flat",
		Commands: []*cli.Command{
			runCommand(),
			ordersCommand(),
			schemaCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Start a trade and drive the polling loop until it finishes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to a yaml config file; defaults apply when omitted",
			},
			&cli.StringFlag{
				Name:  "broker",
				Usage: "Broker adapter: demo, kabu or binance",
				Value: "demo",
			},
			&cli.StringFlag{
				Name:  "symbol",
				Usage: "Symbol to trade",
			},
			&cli.FloatFlag{
				Name:  "capital",
				Usage: "Capital used to size the entry when --qty is not given",
			},
			&cli.FloatFlag{
				Name:  "qty",
				Usage: "Entry quantity; overrides capital based sizing",
			},
			&cli.FloatFlag{
				Name:  "entry-price",
				Usage: "Entry limit price; the entry is a market order when omitted",
			},
			&cli.FloatFlag{
				Name:     "profit-price",
				Usage:    "Profit take limit price",
				Required: true,
			},
			&cli.FloatFlag{
				Name:     "loss-price",
				Usage:    "Stop loss trigger price",
				Required: true,
			},
			&cli.IntFlag{
				Name:  "exchange",
				Usage: "Exchange code passed through to the broker",
				Value: 1,
			},
			&cli.IntFlag{
				Name:  "cash-margin",
				Usage: "1 for cash, 2 for margin",
				Value: 1,
			},
			&cli.IntFlag{
				Name:  "margin-trade-type",
				Usage: "Margin entries: 1 opens a position, 2 repays held positions",
			},
			&cli.FloatFlag{
				Name:  "poll-interval",
				Usage: "Seconds between polling ticks",
				Value: 0.5,
			},
			&cli.IntFlag{
				Name:  "fills-after-polls",
				Usage: "Demo broker: polls before an order fills",
				Value: broker.DefaultFillsAfterPolls,
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "Path to the order database; empty disables persistence",
				Value: "trade.db",
			},
			&cli.StringFlag{
				Name:    "kabu-base-url",
				Usage:   "kabu Station endpoint",
				Value:   "http://localhost:18080",
				Sources: cli.EnvVars("KABU_BASE_URL"),
			},
			&cli.StringFlag{
				Name:    "kabu-api-password",
				Sources: cli.EnvVars("KABU_API_PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "kabu-trading-password",
				Sources: cli.EnvVars("KABU_TRADING_PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "binance-api-key",
				Sources: cli.EnvVars("BINANCE_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "binance-secret-key",
				Sources: cli.EnvVars("BINANCE_SECRET_KEY"),
			},
		},
		Action: runAction,
	}
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	appLogger, err := logger.NewLogger()
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer appLogger.Sync()

	config := trader.DefaultConfig()
	if path := cmd.String("config"); path != "" {
		config, err = trader.LoadConfig(path)
		if err != nil {
			return err
		}
	}

	orderBroker, err := buildBroker(cmd, appLogger)
	if err != nil {
		return err
	}

	var orderStore store.OrderStore

	if dbPath := cmd.String("db"); dbPath != "" {
		duckdbStore, err := store.NewDuckDBStore(dbPath, appLogger)
		if err != nil {
			return err
		}
		defer duckdbStore.Close()

		orderStore = duckdbStore
	}

	autoTrader, err := trader.NewAutoTrader(orderBroker, orderStore, config,
		trader.WithLogger(appLogger),
		trader.WithCallbacks(trader.Callbacks{
			OnStateChange: func(from, to types.TraderState) {
				fmt.Printf("state %s -> %s\n", from, to)
			},
			OnExitLegStatus: func(role types.OrderRole, status types.OrderStatus) {
				fmt.Printf("%s is %s\n", role, status)
			},
			OnFinished: func(final types.TraderState) {
				fmt.Printf("finished with state %s\n", final)
			},
		}),
	)
	if err != nil {
		return err
	}

	entryOrder, err := buildEntryOrder(cmd)
	if err != nil {
		return err
	}

	if err := resolveRepayPositions(ctx, orderBroker, &entryOrder); err != nil {
		return err
	}

	if err := autoTrader.StartTrade(ctx, entryOrder, cmd.Float("profit-price"), cmd.Float("loss-price")); err != nil {
		return err
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupt)

	pollInterval := time.Duration(cmd.Float("poll-interval") * float64(time.Second))

	for !autoTrader.State().IsTerminal() {
		select {
		case <-interrupt:
			fmt.Println("interrupt received, forcing market exit")

			if err := autoTrader.ForceExitMarket(ctx); err != nil {
				return err
			}
		case <-time.After(pollInterval):
			if err := autoTrader.Poll(ctx); err != nil {
				return err
			}
		}
	}

	return nil
}

func buildBroker(cmd *cli.Command, appLogger *logger.Logger) (broker.Broker, error) {
	switch cmd.String("broker") {
	case "demo":
		return broker.NewDemoBroker(int(cmd.Int("fills-after-polls"))), nil
	case "kabu":
		return kabu.NewBroker(kabu.Config{
			BaseURL:         cmd.String("kabu-base-url"),
			APIPassword:     cmd.String("kabu-api-password"),
			TradingPassword: cmd.String("kabu-trading-password"),
		}, appLogger)
	case "binance":
		return broker.NewBinanceBroker(
			cmd.String("binance-api-key"),
			cmd.String("binance-secret-key"),
			appLogger,
		), nil
	default:
		return nil, fmt.Errorf("unknown broker %q, want demo, kabu or binance", cmd.String("broker"))
	}
}

func buildEntryOrder(cmd *cli.Command) (types.Order, error) {
	quantity := cmd.Float("qty")
	if quantity <= 0 {
		quantity = trader.CalculateQuantity(cmd.Float("capital"), cmd.Float("entry-price"))
	}

	if quantity <= 0 {
		return types.Order{}, fmt.Errorf("entry quantity is zero: give --qty, or --capital with --entry-price")
	}

	orderType := types.OrderTypeMarket
	if cmd.Float("entry-price") > 0 {
		orderType = types.OrderTypeLimit
	}

	order := types.NewOrder(types.RoleEntry, orderType, quantity)
	order.Symbol = cmd.String("symbol")
	order.Side = types.SideBuy
	order.Price = cmd.Float("entry-price")
	order.Exchange = int(cmd.Int("exchange"))
	order.CashMargin = int(cmd.Int("cash-margin"))
	order.MarginTradeType = int(cmd.Int("margin-trade-type"))

	return order, nil
}

// resolveRepayPositions fills ClosePositions for a margin trade from the
// broker's held positions so the repay legs know which holdings to close.
// Only the kabu adapter has the holdings concept; other brokers leave the
// order untouched.
func resolveRepayPositions(ctx context.Context, orderBroker broker.Broker, order *types.Order) error {
	if order.CashMargin != 2 || len(order.ClosePositions) > 0 {
		return nil
	}

	kabuBroker, ok := orderBroker.(*kabu.Broker)
	if !ok {
		return nil
	}

	closePositions, err := kabuBroker.ResolveClosePositions(ctx, order.Symbol, order.Side, order.Quantity)
	if err != nil {
		return err
	}

	order.ClosePositions = closePositions

	return nil
}

func ordersCommand() *cli.Command {
	return &cli.Command{
		Name:  "orders",
		Usage: "List the orders recorded in the database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "db",
				Usage: "Path to the order database",
				Value: "trade.db",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			duckdbStore, err := store.NewDuckDBStore(cmd.String("db"), logger.NewNopLogger())
			if err != nil {
				return err
			}
			defer duckdbStore.Close()

			orders, err := duckdbStore.ListOrders(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("%-12s %-12s %-8s %-8s %-10s %10s %10s %-10s\n",
				"ORDER ID", "ROLE", "TYPE", "SIDE", "SYMBOL", "QTY", "FILLED", "STATUS")

			for _, order := range orders {
				fmt.Printf("%-12s %-12s %-8s %-8s %-10s %10.2f %10.2f %-10s\n",
					order.OrderID, order.Role, order.Type, order.Side,
					order.Symbol, order.Quantity, order.FilledQty, order.Status)
			}

			return nil
		},
	}
}

func schemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "Print the JSON schema of the yaml config",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			schema, err := trader.ConfigSchema()
			if err != nil {
				return err
			}

			fmt.Println(schema)

			return nil
		},
	}
}
