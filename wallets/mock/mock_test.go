package mock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RogueTeam/paywatch/wallets"
	"github.com/RogueTeam/paywatch/wallets/mock"
	"github.com/RogueTeam/paywatch/wallets/testsuite"
	"github.com/stretchr/testify/assert"
)

type generator struct {
	m *mock.Mock
}

func (g *generator) InvoiceAmount() (amount uint64) { return 21_000 }

func (g *generator) Pay(ctx context.Context, invoice wallets.Invoice) (err error) {
	_, err = g.m.Pay(invoice.Invoice)
	return err
}

func (g *generator) SettleTimeout() (timeout time.Duration) { return time.Second }

func Test_Mock(t *testing.T) {
	t.Run("Push", func(t *testing.T) {
		m := mock.New(mock.Config{})
		testsuite.Test(t, m, &generator{m: m})
	})
	t.Run("Polling Only", func(t *testing.T) {
		m := mock.New(mock.Config{Capabilities: []string{wallets.CapabilityListTransactions}})
		testsuite.Test(t, m, &generator{m: m})
	})
	t.Run("Without Invoice Correlation", func(t *testing.T) {
		m := mock.New(mock.Config{OmitInvoice: true})
		testsuite.Test(t, m, &generator{m: m})
	})
}

func Test_Disconnected(t *testing.T) {
	assertions := assert.New(t)

	m := mock.New(mock.Config{Disconnected: true})

	_, err := m.SubscribeNotifications(context.Background(), func(wallets.Notification) {})
	assertions.True(errors.Is(err, wallets.ErrNotConnected), "subscribe should fail")

	_, err = m.ListTransactions(context.Background(), wallets.ListTransactionsRequest{Direction: wallets.DirectionIncoming})
	assertions.True(errors.Is(err, wallets.ErrNotConnected), "list should fail")

	m.SetConnected(true)
	_, err = m.ListTransactions(context.Background(), wallets.ListTransactionsRequest{Direction: wallets.DirectionIncoming})
	assertions.Nil(err, "list should succeed once connected")
}

func Test_Unsubscribe(t *testing.T) {
	assertions := assert.New(t)

	m := mock.New(mock.Config{})
	var calls int
	unsubscribe, err := m.SubscribeNotifications(context.Background(), func(wallets.Notification) { calls++ })
	assertions.Nil(err, "failed to subscribe")
	assertions.Equal(1, m.Subscribers())

	_, err = m.Receive(10)
	assertions.Nil(err, "failed to receive")
	assertions.Equal(1, calls)

	unsubscribe()
	unsubscribe()
	assertions.Equal(0, m.Subscribers(), "registration leaked")

	_, err = m.Receive(10)
	assertions.Nil(err, "failed to receive")
	assertions.Equal(1, calls, "handler called after unsubscribe")
}

func Test_ListTransactions(t *testing.T) {
	assertions := assert.New(t)
	ctx := context.Background()

	m := mock.New(mock.Config{})
	first, _ := m.Receive(100)
	_, err := m.Send(30)
	assertions.Nil(err, "failed to send")
	second, _ := m.Receive(200)

	incoming, err := m.ListTransactions(ctx, wallets.ListTransactionsRequest{Direction: wallets.DirectionIncoming})
	assertions.Nil(err, "failed to list")
	if assertions.Len(incoming, 2) {
		assertions.Equal(second.PaymentHash, incoming[0].PaymentHash, "newest first")
		assertions.Equal(first.PaymentHash, incoming[1].PaymentHash)
	}

	outgoing, err := m.ListTransactions(ctx, wallets.ListTransactionsRequest{Direction: wallets.DirectionOutgoing, Limit: 1})
	assertions.Nil(err, "failed to list")
	assertions.Len(outgoing, 1)

	balance, err := m.Balance(ctx)
	assertions.Nil(err, "failed to get balance")
	assertions.Equal(uint64(270), balance.Amount)

	_, err = m.Send(1_000)
	assertions.True(errors.Is(err, mock.ErrInsufficientBalance))

	boom := errors.New("boom")
	m.FailNextList(1, boom)
	_, err = m.ListTransactions(ctx, wallets.ListTransactionsRequest{Direction: wallets.DirectionIncoming})
	assertions.True(errors.Is(err, boom))
	_, err = m.ListTransactions(ctx, wallets.ListTransactionsRequest{Direction: wallets.DirectionIncoming})
	assertions.Nil(err, "only one failure injected")
	assertions.Equal(uint64(4), m.ListCalls())
}
