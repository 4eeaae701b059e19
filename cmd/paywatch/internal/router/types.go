package router

import (
	"time"

	"github.com/RogueTeam/paywatch/decimal"
	"github.com/RogueTeam/paywatch/receipts"
	"github.com/google/uuid"
)

type (
	Receive struct {
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description"`
	}
	Track struct {
		Token string `json:"token"`
		// Informative only
		Amount *decimal.Decimal `json:"amount,omitempty"`
	}
	Transaction struct {
		PaymentHash string          `json:"paymentHash"`
		Amount      decimal.Decimal `json:"amount"`
		SettledAt   *time.Time      `json:"settledAt,omitempty"`
	}
	Receipt struct {
		Id          uuid.UUID       `json:"id"`
		Token       string          `json:"token"`
		Amount      decimal.Decimal `json:"amount"`
		Description string          `json:"description,omitempty"`
		Status      receipts.Status `json:"status"`
		CreatedAt   time.Time       `json:"createdAt"`
		Transaction *Transaction    `json:"transaction,omitempty"`
		Error       string          `json:"error,omitempty"`
	}
	Balance struct {
		Balance decimal.Decimal `json:"balance"`
	}
	Error struct {
		Error string `json:"error"`
	}
)

// Convert from the ledger's Receipt to its public representation
func ReceiptFromLedger(src *receipts.Receipt, unit uint64) (receipt Receipt) {
	receipt = Receipt{
		Id:          src.Id,
		Token:       src.Token,
		Amount:      decimal.New(src.Amount, unit),
		Description: src.Description,
		Status:      src.Status,
		CreatedAt:   src.CreatedAt,
		Error:       src.Error,
	}
	if src.Transaction != nil {
		receipt.Transaction = &Transaction{
			PaymentHash: src.Transaction.PaymentHash,
			Amount:      decimal.New(src.Transaction.Amount, unit),
			SettledAt:   src.Transaction.SettledAt,
		}
	}
	return receipt
}
