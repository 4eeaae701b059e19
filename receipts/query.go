package receipts

import (
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

func getReceipt(txn *badger.Txn, id uuid.UUID) (receipt Receipt, err error) {
	entry, err := txn.Get(ReceiptKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return receipt, ErrReceiptNotFound
		}
		return receipt, fmt.Errorf("failed to query existing receipt: %w", err)
	}

	err = entry.Value(func(val []byte) (err error) {
		err = receipt.FromBytes(val)
		if err != nil {
			return fmt.Errorf("failed to unmarshal receipt: %w", err)
		}
		return nil
	})
	if err != nil {
		return receipt, fmt.Errorf("failed to retrieve value: %w", err)
	}
	return receipt, nil
}

// Query returns the receipt stored under id
func (c *Controller) Query(id uuid.UUID) (receipt Receipt, err error) {
	err = c.db.View(func(txn *badger.Txn) (err error) {
		receipt, err = getReceipt(txn, id)
		return err
	})
	if err != nil {
		return receipt, fmt.Errorf("failed to query entry from the database: %w", err)
	}
	return receipt, nil
}

// Applies update to a pending receipt. Terminal receipts lose their pending entry
func (c *Controller) transition(id uuid.UUID, update func(r *Receipt)) (receipt Receipt, err error) {
	err = c.db.Update(func(txn *badger.Txn) (err error) {
		receipt, err = getReceipt(txn, id)
		if err != nil {
			return err
		}
		if receipt.Status != StatusPending {
			return ErrNotPending
		}

		update(&receipt)

		if receipt.Status != StatusPending {
			err = txn.Delete(PendingKey(id))
			if err != nil {
				return fmt.Errorf("failed to delete pending key: %w", err)
			}
		}
		err = txn.Set(ReceiptKey(id), receipt.Bytes())
		if err != nil {
			return fmt.Errorf("failed to set receipt: %w", err)
		}
		return nil
	})
	return receipt, err
}
