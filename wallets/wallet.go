package wallets

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"
)

var (
	ErrNotConnected             = errors.New("wallet not connected")
	ErrNotificationsUnsupported = errors.New("notifications not supported by wallet")
	ErrInvalidDirection         = errors.New("invalid direction")
)

// Capability tokens declared by a wallet connection
const (
	CapabilityNotifications    = "notifications"
	CapabilityListTransactions = "list_transactions"
	CapabilityMakeInvoice      = "make_invoice"
	CapabilityGetBalance       = "get_balance"
)

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

type Direction string

func (d Direction) Validate() (err error) {
	switch d {
	case DirectionIncoming, DirectionOutgoing:
		return nil
	default:
		return ErrInvalidDirection
	}
}

const (
	NotificationPaymentReceived NotificationType = "payment_received"
	NotificationPaymentSent     NotificationType = "payment_sent"
)

type NotificationType string

type (
	Transaction struct {
		// Backend assigned identifier of the payment. Unique per payment
		PaymentHash string
		// Incoming or outgoing
		Direction Direction
		// Amount in the smallest unit reported by the backend
		Amount uint64
		// Set only once the payment settled
		SettledAt *time.Time
		// Request the payment settled (invoice or receiving address).
		// Empty when the backend can't report it
		Invoice string
	}
	ListTransactionsRequest struct {
		// Only transactions in this direction
		Direction Direction
		// Maximum number of transactions, newest first
		Limit uint64
	}
	MakeInvoiceRequest struct {
		// Amount expected. Zero for flexible amount requests
		Amount uint64
		// Description attached to the request
		Description string
	}
	Invoice struct {
		// Token the payer uses. Invoice string or receiving address
		Invoice string
		// Payment hash if known at creation time
		PaymentHash string
		// Amount requested
		Amount uint64
		// Creation time
		CreatedAt time.Time
	}
	Balance struct {
		// Spendable balance in the smallest unit
		Amount uint64
	}
	Notification struct {
		Type        NotificationType
		Transaction Transaction
	}
)

type NotificationHandler func(n Notification)

type Wallet interface {
	// Capabilities declared by the connection. Read once at connection time
	Capabilities() (capabilities []string)

	// Registers handler for backend events until unsubscribe is called.
	// Fails when there is no live connection
	SubscribeNotifications(ctx context.Context, handler NotificationHandler) (unsubscribe func(), err error)

	// Settled transactions, newest first
	ListTransactions(ctx context.Context, req ListTransactionsRequest) (txs []Transaction, err error)

	// Creates a new payment request
	MakeInvoice(ctx context.Context, req MakeInvoiceRequest) (invoice Invoice, err error)

	// Returns the balance of the wallet
	Balance(ctx context.Context) (balance Balance, err error)
}

// HasCapability reports whether capability is declared in capabilities
func HasCapability(capabilities []string, capability string) (found bool) {
	return slices.Contains(capabilities, capability)
}

func (t *Transaction) Settled() (settled bool) {
	return t.SettledAt != nil
}

func (t *Transaction) String() (s string) {
	contents, _ := json.Marshal(t)
	return string(contents)
}
