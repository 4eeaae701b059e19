package receipts

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/RogueTeam/paywatch/wallets"
	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusSettled   Status = "settled"
	StatusCancelled Status = "cancelled"
	// Detection could not run. The payment itself may still have happened
	StatusFailed Status = "failed"
)

var pendingPrefix = []byte("/pending/")

func PendingKey(id uuid.UUID) (key []byte) {
	return []byte(fmt.Sprintf("/pending/%s", id))
}

func ReceiptKey(id uuid.UUID) (key []byte) {
	return []byte(fmt.Sprintf("/receipts/%s", id))
}

type Receipt struct {
	// Identifier of the receipt
	Id uuid.UUID
	// Invoice or address watched. Empty for reusable addresses
	Token string
	// Expected amount in backend units. Zero for flexible amounts
	Amount      uint64
	Description string
	Status      Status
	CreatedAt   time.Time
	// Transaction that settled the receipt
	Transaction *wallets.Transaction `json:",omitempty"`
	// Error message
	Error string `json:",omitempty"`
}

func (r *Receipt) SetError(err error) {
	if err == nil {
		return
	}

	r.Status = StatusFailed
	r.Error = err.Error()
}

func (r *Receipt) Bytes() (bytes []byte) {
	bytes, _ = json.Marshal(r)
	return bytes
}

func (r *Receipt) FromBytes(b []byte) (err error) {
	return json.Unmarshal(b, r)
}
