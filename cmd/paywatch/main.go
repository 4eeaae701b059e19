package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RogueTeam/paywatch/cmd/paywatch/internal/router"
	"github.com/RogueTeam/paywatch/decimal"
	"github.com/RogueTeam/paywatch/utils"
	"github.com/RogueTeam/paywatch/wallets"
	"github.com/RogueTeam/paywatch/watch"
	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"
)

const ShutdownTimeout = 10 * time.Second

func configFlag() (flag *cli.StringFlag) {
	return &cli.StringFlag{
		Name:  "config",
		Usage: "YAML configuration",
		Value: "config.yaml",
	}
}

func newLogger(c *cli.Command) (logger *slog.Logger) {
	level := slog.LevelInfo
	if c.Bool("debug") {
		level = slog.LevelDebug
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func serve(ctx context.Context, c *cli.Command) (err error) {
	logger := newLogger(c)

	if c.Bool("debug") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	cfg, err := LoadConfig(c.String("config"))
	if err != nil {
		return err
	}

	svc, err := cfg.Compile(logger)
	if err != nil {
		return err
	}
	defer func() {
		closeErr := svc.Close()
		if closeErr != nil {
			logger.Error("failed to close service", "error", closeErr)
		}
	}()

	err = svc.Receipts.Resume(ctx)
	if err != nil {
		return fmt.Errorf("failed to resume pending receipts: %w", err)
	}

	e := gin.New()
	e.Use(gin.Recovery())
	var r = router.Router{
		Receipts:   svc.Receipts,
		Wallet:     svc.Wallet,
		AmountUnit: cfg.AmountUnit,
		Base:       e,
	}
	r.Register()

	server := &http.Server{Addr: cfg.ListenAddress, Handler: e}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()
	logger.Info("listening", "address", cfg.ListenAddress, "backend", cfg.Backend.Kind)

	select {
	case err = <-serveErr:
		return fmt.Errorf("failed to serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := utils.NewContextWithTimeout(ShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func printJSON(v any) {
	contents, _ := json.MarshalIndent(v, "", "\t")
	fmt.Println(string(contents))
}

// watchPayment blocks until the token is paid or detection gives up
func watchPayment(ctx context.Context, c *cli.Command) (err error) {
	logger := newLogger(c)

	cfg, err := LoadConfig(c.String("config"))
	if err != nil {
		return err
	}

	wallet, closer, err := cfg.Wallet(logger)
	if err != nil {
		return err
	}
	defer closer()

	token := c.String("token")
	if c.IsSet("amount") {
		var amount decimal.Decimal
		err = amount.FromString(c.String("amount"))
		if err != nil {
			return fmt.Errorf("invalid amount: %w", err)
		}
		units, err := amount.ToUint64(cfg.AmountUnit)
		if err != nil {
			return fmt.Errorf("invalid amount: %w", err)
		}

		callCtx, cancel := context.WithTimeout(ctx, utils.DefaultTimeout)
		defer cancel()
		invoice, err := wallet.MakeInvoice(callCtx, wallets.MakeInvoiceRequest{
			Amount:      units,
			Description: c.String("description"),
		})
		if err != nil {
			return fmt.Errorf("failed to make invoice: %w", err)
		}
		token = invoice.Invoice
		printJSON(invoice)
	}

	type outcome struct {
		tx  wallets.Transaction
		err error
	}
	done := make(chan outcome, 1)
	watcher := cfg.Watcher(wallet, logger)
	cancel := watcher.WatchForPayment(ctx, token, watch.Handlers{
		OnMatched: func(tx wallets.Transaction) { done <- outcome{tx: tx} },
		OnFailed:  func(err error) { done <- outcome{err: err} },
	})
	defer cancel()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case result := <-done:
		if result.err != nil {
			return cli.Exit(result.err.Error(), 1)
		}
		printJSON(result.tx)
		return nil
	}
}

func balance(ctx context.Context, c *cli.Command) (err error) {
	logger := newLogger(c)

	cfg, err := LoadConfig(c.String("config"))
	if err != nil {
		return err
	}

	wallet, closer, err := cfg.Wallet(logger)
	if err != nil {
		return err
	}
	defer closer()

	callCtx, cancel := context.WithTimeout(ctx, utils.DefaultTimeout)
	defer cancel()
	b, err := wallet.Balance(callCtx)
	if err != nil {
		return fmt.Errorf("failed to get balance: %w", err)
	}
	fmt.Println(decimal.New(b.Amount, cfg.AmountUnit).String())
	return nil
}

func newApp() (app *cli.Command) {
	return &cli.Command{
		Name:  "paywatch",
		Usage: "Detects incoming payments on wallet backends",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "set debug mode",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the receipts API",
				Flags:  []cli.Flag{configFlag()},
				Action: serve,
			},
			{
				Name:  "watch",
				Usage: "Watch a single payment request until it is paid",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "amount",
						Usage: "Create a new invoice for this amount",
					},
					&cli.StringFlag{
						Name:  "description",
						Usage: "Description of the new invoice",
					},
					&cli.StringFlag{
						Name:  "token",
						Usage: "Invoice or address to watch. Empty accepts any incoming payment",
					},
				},
				Action: watchPayment,
			},
			{
				Name:   "balance",
				Usage:  "Print the backend balance",
				Flags:  []cli.Flag{configFlag()},
				Action: balance,
			},
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newApp().Run(ctx, os.Args)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
