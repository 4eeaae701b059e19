package mock

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/RogueTeam/paywatch/random"
	"github.com/RogueTeam/paywatch/wallets"
)

var (
	ErrInvoiceNotFound     = errors.New("invoice not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
)

const InvoicePrefix = "lnmock"

// Mock implements the wallets.Wallet interface for testing purposes.
type Mock struct {
	mu           sync.Mutex
	rand         *rand.Rand
	capabilities []string
	connected    bool
	invoices     map[string]wallets.Invoice
	transactions []wallets.Transaction // oldest first
	subscribers  map[uint64]wallets.NotificationHandler
	nextSub      uint64
	listCalls    uint64
	listFailures int
	listErr      error
	omitInvoice  bool
}

var _ wallets.Wallet = (*Mock)(nil)

type Config struct {
	// Capabilities declared. Nil means all of them
	Capabilities []string
	// Start without a live connection
	Disconnected bool
	// Do not report the invoice settled by incoming transactions
	OmitInvoice bool
}

var DefaultCapabilities = []string{
	wallets.CapabilityNotifications,
	wallets.CapabilityListTransactions,
	wallets.CapabilityMakeInvoice,
	wallets.CapabilityGetBalance,
}

// New creates a new Mock wallet.
func New(config Config) *Mock {
	m := &Mock{
		rand:         random.CryptoRand(),
		capabilities: config.Capabilities,
		connected:    !config.Disconnected,
		invoices:     make(map[string]wallets.Invoice),
		subscribers:  make(map[uint64]wallets.NotificationHandler),
		omitInvoice:  config.OmitInvoice,
	}
	if m.capabilities == nil {
		m.capabilities = slices.Clone(DefaultCapabilities)
	}
	return m
}

func (m *Mock) Capabilities() (capabilities []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.capabilities)
}

func (m *Mock) SubscribeNotifications(ctx context.Context, handler wallets.NotificationHandler) (unsubscribe func(), err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return nil, wallets.ErrNotConnected
	}
	if !wallets.HasCapability(m.capabilities, wallets.CapabilityNotifications) {
		return nil, wallets.ErrNotificationsUnsupported
	}

	id := m.nextSub
	m.nextSub++
	m.subscribers[id] = handler

	var once sync.Once
	unsubscribe = func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subscribers, id)
		})
	}
	return unsubscribe, nil
}

func (m *Mock) ListTransactions(ctx context.Context, req wallets.ListTransactionsRequest) (txs []wallets.Transaction, err error) {
	err = req.Direction.Validate()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.listCalls++
	if !m.connected {
		return nil, wallets.ErrNotConnected
	}
	if m.listFailures > 0 {
		m.listFailures--
		return nil, m.listErr
	}

	for index := len(m.transactions) - 1; index >= 0; index-- {
		if req.Limit > 0 && uint64(len(txs)) >= req.Limit {
			break
		}
		tx := m.transactions[index]
		if tx.Direction != req.Direction {
			continue
		}
		txs = append(txs, tx)
	}
	return txs, nil
}

func (m *Mock) MakeInvoice(ctx context.Context, req wallets.MakeInvoiceRequest) (invoice wallets.Invoice, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return invoice, wallets.ErrNotConnected
	}

	invoice = wallets.Invoice{
		Invoice:     fmt.Sprintf("%s%d1%s", InvoicePrefix, req.Amount, random.Hex(m.rand, 20)),
		PaymentHash: random.Hex(m.rand, 32),
		Amount:      req.Amount,
		CreatedAt:   time.Now(),
	}
	m.invoices[invoice.Invoice] = invoice
	return invoice, nil
}

func (m *Mock) Balance(ctx context.Context) (balance wallets.Balance, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return balance, wallets.ErrNotConnected
	}
	return wallets.Balance{Amount: m.balance()}, nil
}

func (m *Mock) balance() (amount uint64) {
	for _, tx := range m.transactions {
		switch tx.Direction {
		case wallets.DirectionIncoming:
			amount += tx.Amount
		case wallets.DirectionOutgoing:
			amount -= tx.Amount
		}
	}
	return amount
}

// Pay settles a previously created invoice
func (m *Mock) Pay(invoice string) (tx wallets.Transaction, err error) {
	m.mu.Lock()
	inv, found := m.invoices[invoice]
	if !found {
		m.mu.Unlock()
		return tx, ErrInvoiceNotFound
	}
	delete(m.invoices, invoice)

	reported := inv.Invoice
	if m.omitInvoice {
		reported = ""
	}
	tx = m.record(wallets.DirectionIncoming, inv.Amount, inv.PaymentHash, reported)
	m.mu.Unlock()

	m.notify(wallets.NotificationPaymentReceived, tx)
	return tx, nil
}

// Receive simulates an incoming payment to a reusable address.
// The backend reports no associated request
func (m *Mock) Receive(amount uint64) (tx wallets.Transaction, err error) {
	if amount == 0 {
		return tx, ErrInvalidAmount
	}

	m.mu.Lock()
	tx = m.record(wallets.DirectionIncoming, amount, random.Hex(m.rand, 32), "")
	m.mu.Unlock()

	m.notify(wallets.NotificationPaymentReceived, tx)
	return tx, nil
}

// Send simulates an outgoing payment
func (m *Mock) Send(amount uint64) (tx wallets.Transaction, err error) {
	if amount == 0 {
		return tx, ErrInvalidAmount
	}

	m.mu.Lock()
	if m.balance() < amount {
		m.mu.Unlock()
		return tx, ErrInsufficientBalance
	}
	tx = m.record(wallets.DirectionOutgoing, amount, random.Hex(m.rand, 32), "")
	m.mu.Unlock()

	m.notify(wallets.NotificationPaymentSent, tx)
	return tx, nil
}

func (m *Mock) record(direction wallets.Direction, amount uint64, hash, invoice string) (tx wallets.Transaction) {
	now := time.Now()
	tx = wallets.Transaction{
		PaymentHash: hash,
		Direction:   direction,
		Amount:      amount,
		SettledAt:   &now,
		Invoice:     invoice,
	}
	m.transactions = append(m.transactions, tx)
	return tx
}

// Handlers are called outside the lock so they can call back into the mock
func (m *Mock) notify(kind wallets.NotificationType, tx wallets.Transaction) {
	m.mu.Lock()
	handlers := make([]wallets.NotificationHandler, 0, len(m.subscribers))
	for _, handler := range m.subscribers {
		handlers = append(handlers, handler)
	}
	m.mu.Unlock()

	for _, handler := range handlers {
		handler(wallets.Notification{Type: kind, Transaction: tx})
	}
}

// SetConnected simulates losing or recovering the connection
func (m *Mock) SetConnected(connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.connected = connected
}

// FailNextList makes the next n ListTransactions calls return err
func (m *Mock) FailNextList(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.listFailures = n
	m.listErr = err
}

// Subscribers returns the number of live notification registrations
func (m *Mock) Subscribers() (count int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.subscribers)
}

// ListCalls returns how many times ListTransactions was called
func (m *Mock) ListCalls() (calls uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.listCalls
}
