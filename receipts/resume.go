package receipts

import (
	"context"
	"fmt"
	"sync"

	"github.com/RogueTeam/paywatch/utils"
	"github.com/RogueTeam/paywatch/wallets"
	badger "github.com/dgraph-io/badger/v4"
)

const MaxConcurrentJobs = 1_000

// Streams pending receipts into a channel. receipts must be consumed entirely
func (c *Controller) streamPendingReceipts() (receipts chan Receipt, err chan error) {
	receipts = make(chan Receipt, 1_000)
	err = make(chan error, 1)
	go func() {
		defer close(receipts)
		defer close(err)

		err <- c.db.View(func(txn *badger.Txn) (err error) {
			options := badger.DefaultIteratorOptions
			options.Prefix = pendingPrefix
			it := txn.NewIterator(options)
			defer it.Close()

			for it.Rewind(); it.ValidForPrefix(pendingPrefix); it.Next() {
				key := it.Item().KeyCopy(nil)
				id, err := uuidFromPendingKey(key)
				if err != nil {
					c.logger.Error("invalid pending key", "key", string(key), "error", err)
					continue
				}

				receipt, err := getReceipt(txn, id)
				if err != nil {
					// We can't return but even then we need to try the others
					c.logger.Error("failed to retrieve pending receipt", "receipt", id, "error", err)
					continue
				}
				receipts <- receipt
			}
			return nil
		})
	}()
	return receipts, err
}

// Payments settled while nothing was watching. Only attributed transactions are trusted
func (c *Controller) settledWhileDown(ctx context.Context) (settled map[string]wallets.Transaction) {
	settled = make(map[string]wallets.Transaction)

	wallet, err := c.wallet()
	if err != nil {
		return settled
	}

	callCtx, cancel := context.WithTimeout(ctx, utils.DefaultTimeout)
	defer cancel()

	txs, err := wallet.ListTransactions(callCtx, wallets.ListTransactionsRequest{
		Direction: wallets.DirectionIncoming,
		Limit:     c.lookback,
	})
	if err != nil {
		c.logger.Warn("failed to list recent transactions", "error", err)
		return settled
	}
	for _, tx := range txs {
		if tx.Invoice == "" || !tx.Settled() {
			continue
		}
		if _, found := settled[tx.Invoice]; !found {
			settled[tx.Invoice] = tx
		}
	}
	return settled
}

func (c *Controller) resume(receipt Receipt, settled map[string]wallets.Transaction) {
	tx, found := settled[receipt.Token]
	if receipt.Token == "" || !found {
		c.mu.Lock()
		defer c.mu.Unlock()

		if _, watching := c.sessions[receipt.Id]; !watching {
			c.watch(receipt)
		}
		return
	}
	c.settle(receipt.Id, tx)
}

// Resume settles receipts paid while the process was down and restarts detection for the rest
func (c *Controller) Resume(ctx context.Context) (err error) {
	settled := c.settledWhileDown(ctx)

	receipts, errChan := c.streamPendingReceipts()
	defer utils.ConsumeChannel(receipts)
	defer utils.ConsumeChannel(errChan)

	var jobs = utils.NewJobPool(MaxConcurrentJobs)
	var wg sync.WaitGroup
	var resumed int
	for receipt := range receipts {
		resumed++
		jobs.Get()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer jobs.Put()

			c.resume(receipt, settled)
		}()
	}

	wg.Wait()

	err = <-errChan
	if err != nil {
		return fmt.Errorf("failed to retrieve pending receipts: %w", err)
	}
	c.logger.Info("pending receipts resumed", "count", resumed)
	return nil
}
