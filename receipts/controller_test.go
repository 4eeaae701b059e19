package receipts_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RogueTeam/paywatch/receipts"
	"github.com/RogueTeam/paywatch/wallets"
	"github.com/RogueTeam/paywatch/wallets/mock"
	"github.com/RogueTeam/paywatch/watch"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

const (
	waitFor = 5 * time.Second
	tick    = 5 * time.Millisecond
)

func openDB(t *testing.T) (db *badger.DB) {
	options := badger.
		DefaultOptions("").
		WithInMemory(true).
		WithLogger(nil)
	db, err := badger.Open(options)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func newController(db *badger.DB, wallet wallets.Wallet) (ctrl *receipts.Controller) {
	w := watch.New(watch.Config{Wallet: wallet, PollInterval: tick})
	return receipts.New(receipts.Config{DB: db, Watcher: w})
}

func statusOf(ctrl *receipts.Controller, id uuid.UUID) func() bool {
	return func() bool {
		r, err := ctrl.Query(id)
		return err == nil && r.Status != receipts.StatusPending
	}
}

// Waits until detection is in place. Polling needs a baseline tick, push needs a registration
func waitWatching(wallet *mock.Mock) {
	if wallets.HasCapability(wallet.Capabilities(), wallets.CapabilityNotifications) {
		for wallet.Subscribers() == 0 {
			time.Sleep(time.Millisecond)
		}
		return
	}
	time.Sleep(10 * tick)
}

func Test_Controller(t *testing.T) {
	configs := map[string]mock.Config{
		"Push":         {},
		"Polling Only": {Capabilities: []string{wallets.CapabilityListTransactions, wallets.CapabilityMakeInvoice}},
	}
	for name, config := range configs {
		t.Run(name, func(t *testing.T) {
			t.Run("Receive", func(t *testing.T) {
				assertions := assert.New(t)
				ctx := context.Background()

				wallet := mock.New(config)
				ctrl := newController(openDB(t), wallet)
				defer ctrl.Close()

				receipt, err := ctrl.Receive(ctx, receipts.Receive{Amount: 21_000, Description: "coffee"})
				if !assertions.Nil(err, "failed to receive") {
					return
				}
				assertions.Equal(receipts.StatusPending, receipt.Status)
				assertions.NotEmpty(receipt.Token)

				query, err := ctrl.Query(receipt.Id)
				assertions.Nil(err, "failed to query")
				assertions.Equal(receipt.Id, query.Id)

				waitWatching(wallet)
				tx, err := wallet.Pay(receipt.Token)
				assertions.Nil(err, "failed to pay")

				assertions.Eventually(statusOf(ctrl, receipt.Id), waitFor, tick)
				settled, err := ctrl.Query(receipt.Id)
				assertions.Nil(err, "failed to query")
				assertions.Equal(receipts.StatusSettled, settled.Status)
				if assertions.NotNil(settled.Transaction) {
					assertions.Equal(tx.PaymentHash, settled.Transaction.PaymentHash)
				}
				assertions.Zero(ctrl.Sessions())

				_, err = ctrl.Cancel(receipt.Id)
				assertions.True(errors.Is(err, receipts.ErrNotPending))
			})
			t.Run("Track Reusable", func(t *testing.T) {
				assertions := assert.New(t)

				wallet := mock.New(config)
				ctrl := newController(openDB(t), wallet)
				defer ctrl.Close()

				receipt, err := ctrl.Track(context.Background(), receipts.Track{})
				assertions.Nil(err, "failed to track")

				waitWatching(wallet)
				_, err = wallet.Receive(500)
				assertions.Nil(err, "failed to receive")

				assertions.Eventually(statusOf(ctrl, receipt.Id), waitFor, tick)
				settled, _ := ctrl.Query(receipt.Id)
				assertions.Equal(receipts.StatusSettled, settled.Status)
			})
		})
	}
}

func Test_Cancel(t *testing.T) {
	assertions := assert.New(t)
	ctx := context.Background()

	wallet := mock.New(mock.Config{})
	ctrl := newController(openDB(t), wallet)
	defer ctrl.Close()

	receipt, err := ctrl.Receive(ctx, receipts.Receive{Amount: 1_000})
	assertions.Nil(err, "failed to receive")

	cancelled, err := ctrl.Cancel(receipt.Id)
	assertions.Nil(err, "failed to cancel")
	assertions.Equal(receipts.StatusCancelled, cancelled.Status)
	assertions.Zero(ctrl.Sessions())

	_, err = wallet.Pay(receipt.Token)
	assertions.Nil(err, "failed to pay")
	time.Sleep(20 * tick)

	query, _ := ctrl.Query(receipt.Id)
	assertions.Equal(receipts.StatusCancelled, query.Status, "cancelled receipt settled")

	_, err = ctrl.Cancel(receipt.Id)
	assertions.True(errors.Is(err, receipts.ErrNotPending))
	_, err = ctrl.Cancel(uuid.New())
	assertions.True(errors.Is(err, receipts.ErrReceiptNotFound))
	_, err = ctrl.Query(uuid.New())
	assertions.True(errors.Is(err, receipts.ErrReceiptNotFound))
}

func Test_DetectionUnavailable(t *testing.T) {
	assertions := assert.New(t)

	wallet := mock.New(mock.Config{Disconnected: true})
	ctrl := newController(openDB(t), wallet)
	defer ctrl.Close()

	_, err := ctrl.Receive(context.Background(), receipts.Receive{Amount: 1_000})
	assertions.True(errors.Is(err, wallets.ErrNotConnected))

	receipt, err := ctrl.Track(context.Background(), receipts.Track{Token: "lnmock1"})
	assertions.Nil(err, "failed to track")

	assertions.Eventually(statusOf(ctrl, receipt.Id), waitFor, tick)
	failed, _ := ctrl.Query(receipt.Id)
	assertions.Equal(receipts.StatusFailed, failed.Status)
	assertions.Contains(failed.Error, watch.ErrDetectionUnavailable.Error())
}

func Test_Resume(t *testing.T) {
	assertions := assert.New(t)
	ctx := context.Background()

	db := openDB(t)
	wallet := mock.New(mock.Config{})

	first := newController(db, wallet)
	paidWhileDown, err := first.Receive(ctx, receipts.Receive{Amount: 1_000})
	assertions.Nil(err, "failed to receive")
	stillPending, err := first.Receive(ctx, receipts.Receive{Amount: 2_000})
	assertions.Nil(err, "failed to receive")
	first.Close()

	_, err = first.Receive(ctx, receipts.Receive{Amount: 1})
	assertions.True(errors.Is(err, receipts.ErrClosed))

	for _, id := range []uuid.UUID{paidWhileDown.Id, stillPending.Id} {
		r, _ := first.Query(id)
		assertions.Equal(receipts.StatusPending, r.Status, "close must keep receipts pending")
	}

	_, err = wallet.Pay(paidWhileDown.Token)
	assertions.Nil(err, "failed to pay")

	second := newController(db, wallet)
	defer second.Close()

	err = second.Resume(ctx)
	assertions.Nil(err, "failed to resume")

	r, _ := second.Query(paidWhileDown.Id)
	assertions.Equal(receipts.StatusSettled, r.Status, "payment made while down")
	r, _ = second.Query(stillPending.Id)
	assertions.Equal(receipts.StatusPending, r.Status)
	assertions.Equal(1, second.Sessions())

	waitWatching(wallet)
	_, err = wallet.Pay(stillPending.Token)
	assertions.Nil(err, "failed to pay")
	assertions.Eventually(statusOf(second, stillPending.Id), waitFor, tick)
	r, _ = second.Query(stillPending.Id)
	assertions.Equal(receipts.StatusSettled, r.Status)
}
