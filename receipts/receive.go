package receipts

import (
	"context"
	"fmt"
	"time"

	"github.com/RogueTeam/paywatch/utils"
	"github.com/RogueTeam/paywatch/wallets"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type Receive struct {
	// Zero for flexible amount invoices
	Amount      uint64
	Description string
}

type Track struct {
	// Invoice or address issued elsewhere. Empty watches for any incoming payment
	Token  string
	Amount uint64
}

// Receive makes a new invoice on the backend and watches it until paid
func (c *Controller) Receive(ctx context.Context, req Receive) (receipt Receipt, err error) {
	wallet, err := c.wallet()
	if err != nil {
		return receipt, err
	}

	callCtx, cancel := context.WithTimeout(ctx, utils.DefaultTimeout)
	defer cancel()

	invoice, err := wallet.MakeInvoice(callCtx, wallets.MakeInvoiceRequest{
		Amount:      req.Amount,
		Description: req.Description,
	})
	if err != nil {
		return receipt, fmt.Errorf("failed to make invoice: %w", err)
	}

	receipt = Receipt{
		Id:          uuid.New(),
		Token:       invoice.Invoice,
		Amount:      req.Amount,
		Description: req.Description,
		Status:      StatusPending,
		CreatedAt:   invoice.CreatedAt,
	}
	return c.open(receipt)
}

// Track watches a token that was issued outside this controller
func (c *Controller) Track(ctx context.Context, req Track) (receipt Receipt, err error) {
	receipt = Receipt{
		Id:        uuid.New(),
		Token:     req.Token,
		Amount:    req.Amount,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	return c.open(receipt)
}

func (c *Controller) open(receipt Receipt) (r Receipt, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return receipt, ErrClosed
	}

	err = c.store(receipt)
	if err != nil {
		return receipt, err
	}

	c.logger.Info("receipt opened", "receipt", receipt.Id, "token", receipt.Token, "amount", receipt.Amount)
	c.watch(receipt)
	return receipt, nil
}

// Persists a new pending receipt
func (c *Controller) store(receipt Receipt) (err error) {
	err = c.db.Update(func(txn *badger.Txn) (err error) {
		// Pending entry
		err = txn.Set(PendingKey(receipt.Id), receipt.Id[:])
		if err != nil {
			return fmt.Errorf("failed to add pending key: %w", err)
		}

		// Save entry
		err = txn.Set(ReceiptKey(receipt.Id), receipt.Bytes())
		if err != nil {
			return fmt.Errorf("failed to set receipt: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add entry to the database: %w", err)
	}
	return nil
}
