package testsuite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RogueTeam/paywatch/random"
	"github.com/RogueTeam/paywatch/utils"
	"github.com/RogueTeam/paywatch/wallets"
	"github.com/stretchr/testify/assert"
)

// DataGenerator defines an interface for test data generation.
type DataGenerator interface {
	// InvoiceAmount returns the amount to request on invoices.
	InvoiceAmount() (amount uint64)
	// Pay settles invoice from outside the wallet under test.
	Pay(ctx context.Context, invoice wallets.Invoice) (err error)
	// SettleTimeout is how long a payment may take until it is listed as settled.
	SettleTimeout() (timeout time.Duration)
}

// Test runs a comprehensive suite of tests for any Wallet implementation.
// Subtests paying invoices run sequentially since they inspect the most recent transaction.
func Test(t *testing.T, w wallets.Wallet, gen DataGenerator) {
	t.Run("Capabilities", func(t *testing.T) {
		assertions := assert.New(t)

		capabilities := w.Capabilities()
		assertions.NotEmpty(capabilities, "wallet should declare capabilities")
		assertions.True(wallets.HasCapability(capabilities, wallets.CapabilityListTransactions), "detection requires list_transactions")
	})

	t.Run("MakeInvoice", func(t *testing.T) {
		assertions := assert.New(t)

		ctx, cancel := utils.NewContext()
		defer cancel()

		first, err := w.MakeInvoice(ctx, wallets.MakeInvoiceRequest{
			Amount:      gen.InvoiceAmount(),
			Description: random.String(random.PseudoRand, random.CharsetAlphaNumeric, 10),
		})
		if !assertions.Nil(err, "failed to make invoice") {
			return
		}
		assertions.NotEmpty(first.Invoice, "invoice should have a token")

		second, err := w.MakeInvoice(ctx, wallets.MakeInvoiceRequest{Amount: gen.InvoiceAmount()})
		assertions.Nil(err, "failed to make second invoice")
		assertions.NotEqual(first.Invoice, second.Invoice, "invoices should be unique")
	})

	t.Run("ListTransactions Invalid Direction", func(t *testing.T) {
		assertions := assert.New(t)

		ctx, cancel := utils.NewContext()
		defer cancel()

		_, err := w.ListTransactions(ctx, wallets.ListTransactionsRequest{Direction: "sideways", Limit: 1})
		assertions.True(errors.Is(err, wallets.ErrInvalidDirection), "expecting invalid direction error: %v", err)
	})

	t.Run("Most Recent Incoming", func(t *testing.T) {
		assertions := assert.New(t)

		ctx, cancel := utils.NewContextWithTimeout(gen.SettleTimeout() + utils.DefaultTimeout)
		defer cancel()

		invoice, err := w.MakeInvoice(ctx, wallets.MakeInvoiceRequest{Amount: gen.InvoiceAmount()})
		if !assertions.Nil(err, "failed to make invoice") {
			return
		}

		err = gen.Pay(ctx, invoice)
		if !assertions.Nil(err, "failed to pay invoice") {
			return
		}

		var latest wallets.Transaction
		var found bool
		deadline := time.Now().Add(gen.SettleTimeout())
		for !found && time.Now().Before(deadline) {
			txs, err := w.ListTransactions(ctx, wallets.ListTransactionsRequest{Direction: wallets.DirectionIncoming, Limit: 1})
			if !assertions.Nil(err, "failed to list transactions") {
				return
			}
			assertions.LessOrEqual(len(txs), 1, "limit not honored")
			if len(txs) == 1 && (txs[0].Invoice == "" || txs[0].Invoice == invoice.Invoice) {
				latest = txs[0]
				found = true
				break
			}
			utils.Sleep(ctx, 100*time.Millisecond)
		}
		if !assertions.True(found, "payment never listed") {
			return
		}
		assertions.Equal(wallets.DirectionIncoming, latest.Direction, "invalid direction")
		assertions.NotEmpty(latest.PaymentHash, "payment hash should be set")
		assertions.True(latest.Settled(), "listed transaction should be settled")
	})

	t.Run("Notifications", func(t *testing.T) {
		assertions := assert.New(t)

		ctx, cancel := utils.NewContextWithTimeout(gen.SettleTimeout() + utils.DefaultTimeout)
		defer cancel()

		received := make(chan wallets.Notification, 16)
		unsubscribe, err := w.SubscribeNotifications(ctx, func(n wallets.Notification) {
			select {
			case received <- n:
			default:
			}
		})
		if !wallets.HasCapability(w.Capabilities(), wallets.CapabilityNotifications) {
			assertions.NotNil(err, "subscribe should fail without notifications capability")
			return
		}
		if !assertions.Nil(err, "failed to subscribe") {
			return
		}
		defer unsubscribe()

		invoice, err := w.MakeInvoice(ctx, wallets.MakeInvoiceRequest{Amount: gen.InvoiceAmount()})
		if !assertions.Nil(err, "failed to make invoice") {
			return
		}
		err = gen.Pay(ctx, invoice)
		if !assertions.Nil(err, "failed to pay invoice") {
			return
		}

		timer := time.NewTimer(gen.SettleTimeout())
		defer timer.Stop()
		for {
			select {
			case n := <-received:
				if n.Type != wallets.NotificationPaymentReceived {
					continue
				}
				if n.Transaction.Invoice != "" && n.Transaction.Invoice != invoice.Invoice {
					continue
				}
				assertions.Equal(wallets.DirectionIncoming, n.Transaction.Direction, "invalid direction")
				return
			case <-timer.C:
				assertions.Fail("notification never received")
				return
			}
		}
	})

	t.Run("Balance", func(t *testing.T) {
		assertions := assert.New(t)

		ctx, cancel := utils.NewContext()
		defer cancel()

		balance, err := w.Balance(ctx)
		assertions.Nil(err, "failed to retrieve balance")
		t.Logf("Balance: %+v", balance)
	})
}
