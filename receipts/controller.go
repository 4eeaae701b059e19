package receipts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/RogueTeam/paywatch/wallets"
	"github.com/RogueTeam/paywatch/watch"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var (
	ErrReceiptNotFound = errors.New("receipt not found")
	ErrNotPending      = errors.New("receipt is not pending")
	ErrClosed          = errors.New("controller closed")
)

const DefaultResumeLookback = 100

type Config struct {
	// Badger database to use
	DB *badger.DB
	// Detection sessions are started from it
	Watcher *watch.Watcher
	// Latest incoming transactions checked by Resume. Defaults to DefaultResumeLookback
	ResumeLookback uint64
	Logger         *slog.Logger
}

// Controller keeps a persistent ledger of payment requests and one detection session
// per pending receipt
type Controller struct {
	db       *badger.DB
	watcher  *watch.Watcher
	lookback uint64
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// Guards sessions and every status transition
	mu       sync.Mutex
	sessions map[uuid.UUID]*watch.Session
	closed   bool
}

func New(config Config) (ctrl *Controller) {
	ctrl = &Controller{
		db:       config.DB,
		watcher:  config.Watcher,
		lookback: config.ResumeLookback,
		logger:   config.Logger,
		sessions: make(map[uuid.UUID]*watch.Session),
	}
	if ctrl.lookback == 0 {
		ctrl.lookback = DefaultResumeLookback
	}
	if ctrl.logger == nil {
		ctrl.logger = slog.Default()
	}
	ctrl.ctx, ctrl.cancel = context.WithCancel(context.Background())
	return ctrl
}

func (c *Controller) wallet() (wallet wallets.Wallet, err error) {
	wallet = c.watcher.Wallet()
	if wallet == nil {
		return nil, wallets.ErrNotConnected
	}
	return wallet, nil
}

// Starts the session of a pending receipt. Must be called with c.mu held
func (c *Controller) watch(r Receipt) {
	if c.closed {
		return
	}

	id := r.Id
	session := c.watcher.Watch(c.ctx, watch.Request{
		Token:          r.Token,
		CreatedAt:      r.CreatedAt,
		ExpectedAmount: r.Amount,
	}, watch.Handlers{
		OnMatched: func(tx wallets.Transaction) { c.settle(id, tx) },
		OnFailed:  func(err error) { c.fail(id, err) },
	})
	c.sessions[id] = session
}

func settled(tx wallets.Transaction) (update func(r *Receipt)) {
	return func(r *Receipt) {
		r.Status = StatusSettled
		r.Transaction = &tx
	}
}

func (c *Controller) settle(id uuid.UUID, tx wallets.Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.sessions, id)
	_, err := c.transition(id, settled(tx))
	switch {
	case errors.Is(err, ErrNotPending):
		c.logger.Debug("receipt already closed", "receipt", id, "payment_hash", tx.PaymentHash)
		return
	case err != nil:
		c.logger.Error("failed to settle receipt", "receipt", id, "error", err)
		return
	}
	c.logger.Info("receipt settled", "receipt", id, "payment_hash", tx.PaymentHash, "amount", tx.Amount)
}

func (c *Controller) fail(id uuid.UUID, cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.sessions, id)
	_, err := c.transition(id, func(r *Receipt) { r.SetError(cause) })
	if err != nil {
		c.logger.Error("failed to mark receipt as failed", "receipt", id, "error", err)
	}
}

// Cancel stops watching a pending receipt. A payment the session already detected
// settles the receipt instead and Cancel returns ErrNotPending
func (c *Controller) Cancel(id uuid.UUID) (receipt Receipt, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if session, found := c.sessions[id]; found {
		delete(c.sessions, id)

		// Cancel loses against a match that already happened
		session.Cancel()
		if tx, matched := session.Matched(); matched {
			receipt, err = c.transition(id, settled(tx))
			if err != nil {
				return receipt, fmt.Errorf("failed to settle receipt: %w", err)
			}
			c.logger.Info("receipt settled", "receipt", id, "payment_hash", tx.PaymentHash, "amount", tx.Amount)
			return receipt, fmt.Errorf("failed to cancel receipt: %w", ErrNotPending)
		}
	}

	receipt, err = c.transition(id, func(r *Receipt) { r.Status = StatusCancelled })
	if err != nil {
		return receipt, fmt.Errorf("failed to cancel receipt: %w", err)
	}
	c.logger.Info("receipt cancelled", "receipt", id)
	return receipt, nil
}

// Close cancels every session and waits for them. Receipts stay pending so Resume can pick them up
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	sessions := make([]*watch.Session, 0, len(c.sessions))
	for _, session := range c.sessions {
		sessions = append(sessions, session)
	}
	clear(c.sessions)
	c.mu.Unlock()

	c.cancel()
	for _, session := range sessions {
		session.Wait()
	}
}

// Sessions returns the number of live detection sessions
func (c *Controller) Sessions() (count int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.sessions)
}
