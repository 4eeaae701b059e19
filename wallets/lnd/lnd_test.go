package lnd_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/RogueTeam/paywatch/random"
	"github.com/RogueTeam/paywatch/wallets"
	"github.com/RogueTeam/paywatch/wallets/lnd"
	"github.com/RogueTeam/paywatch/wallets/testsuite"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc"
)

// fakeLightning implements the subset of lnrpc.LightningClient used by the wallet.
// Calling any other method panics through the nil embedded interface
type fakeLightning struct {
	lnrpc.LightningClient

	mu           sync.Mutex
	invoices     []*lnrpc.Invoice
	payments     []*lnrpc.Payment
	settleIndex  uint64
	streams      map[*fakeStream]struct{}
	subscribeErr error
	subscribes   int
	listCalls    int
}

func newFakeLightning() (f *fakeLightning) {
	return &fakeLightning{streams: make(map[*fakeStream]struct{})}
}

type fakeStream struct {
	grpc.ClientStream
	ctx     context.Context
	updates chan *lnrpc.Invoice
}

func (s *fakeStream) Recv() (invoice *lnrpc.Invoice, err error) {
	select {
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	case invoice, ok := <-s.updates:
		if !ok {
			return nil, io.EOF
		}
		return invoice, nil
	}
}

func (f *fakeLightning) AddInvoice(ctx context.Context, in *lnrpc.Invoice, opts ...grpc.CallOption) (*lnrpc.AddInvoiceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r := random.CryptoRand()
	preimage, _ := hex.DecodeString(random.Hex(r, 32))
	hash := sha256.Sum256(preimage)
	invoice := &lnrpc.Invoice{
		Memo:           in.Memo,
		RPreimage:      preimage,
		RHash:          hash[:],
		ValueMsat:      in.ValueMsat,
		Expiry:         in.Expiry,
		CreationDate:   time.Now().Unix(),
		PaymentRequest: fmt.Sprintf("lnbcrt%d1%s", in.ValueMsat, random.Hex(r, 20)),
		AddIndex:       uint64(len(f.invoices) + 1),
		State:          lnrpc.Invoice_OPEN,
	}
	f.invoices = append(f.invoices, invoice)
	return &lnrpc.AddInvoiceResponse{
		RHash:          invoice.RHash,
		PaymentRequest: invoice.PaymentRequest,
		AddIndex:       invoice.AddIndex,
	}, nil
}

func (f *fakeLightning) ListInvoices(ctx context.Context, in *lnrpc.ListInvoiceRequest, opts ...grpc.CallOption) (*lnrpc.ListInvoiceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls++

	// Pages end right before IndexOffset when reversed
	invoices := f.invoices
	if in.Reversed && in.IndexOffset > 0 {
		invoices = invoices[:min(in.IndexOffset-1, uint64(len(invoices)))]
	}
	if uint64(len(invoices)) > in.NumMaxInvoices {
		invoices = invoices[uint64(len(invoices))-in.NumMaxInvoices:]
	}
	res := &lnrpc.ListInvoiceResponse{Invoices: invoices}
	if len(invoices) > 0 {
		res.FirstIndexOffset = invoices[0].AddIndex
		res.LastIndexOffset = invoices[len(invoices)-1].AddIndex
	}
	return res, nil
}

func (f *fakeLightning) ListPayments(ctx context.Context, in *lnrpc.ListPaymentsRequest, opts ...grpc.CallOption) (*lnrpc.ListPaymentsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return &lnrpc.ListPaymentsResponse{Payments: f.payments}, nil
}

func (f *fakeLightning) ChannelBalance(ctx context.Context, in *lnrpc.ChannelBalanceRequest, opts ...grpc.CallOption) (*lnrpc.ChannelBalanceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var msat uint64
	for _, invoice := range f.invoices {
		if invoice.State == lnrpc.Invoice_SETTLED {
			msat += uint64(invoice.AmtPaidMsat)
		}
	}
	return &lnrpc.ChannelBalanceResponse{LocalBalance: &lnrpc.Amount{Sat: msat / 1000, Msat: msat}}, nil
}

func (f *fakeLightning) SubscribeInvoices(ctx context.Context, in *lnrpc.InvoiceSubscription, opts ...grpc.CallOption) (lnrpc.Lightning_SubscribeInvoicesClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.subscribes++
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}

	stream := &fakeStream{ctx: ctx, updates: make(chan *lnrpc.Invoice, 64)}
	if in.SettleIndex > 0 {
		for _, invoice := range f.invoices {
			if invoice.State == lnrpc.Invoice_SETTLED && invoice.SettleIndex > in.SettleIndex {
				stream.updates <- invoice
			}
		}
	}
	f.streams[stream] = struct{}{}
	return stream, nil
}

func (f *fakeLightning) settle(paymentRequest string) (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, invoice := range f.invoices {
		if invoice.PaymentRequest != paymentRequest {
			continue
		}
		if invoice.State == lnrpc.Invoice_SETTLED {
			return errors.New("already settled")
		}
		f.settleIndex++
		invoice.State = lnrpc.Invoice_SETTLED
		invoice.AmtPaidMsat = invoice.ValueMsat
		invoice.SettleDate = time.Now().Unix()
		invoice.SettleIndex = f.settleIndex
		for stream := range f.streams {
			select {
			case stream.updates <- invoice:
			case <-stream.ctx.Done():
			}
		}
		return nil
	}
	return errors.New("invoice not found")
}

// breakStreams closes every open stream as a dropped connection would
func (f *fakeLightning) breakStreams() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for stream := range f.streams {
		close(stream.updates)
		delete(f.streams, stream)
	}
}

// Moves the creation date of an invoice back in time
func (f *fakeLightning) age(addIndex uint64, by time.Duration, expiry int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	invoice := f.invoices[addIndex-1]
	invoice.CreationDate -= int64(by / time.Second)
	invoice.Expiry = expiry
}

func (f *fakeLightning) listInvoiceCalls() (n int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.listCalls
}

func (f *fakeLightning) subscribeCalls() (n int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.subscribes
}

type generator struct {
	fake *fakeLightning
}

func (g *generator) InvoiceAmount() (amount uint64) { return 21_000 }

func (g *generator) Pay(ctx context.Context, invoice wallets.Invoice) (err error) {
	return g.fake.settle(invoice.Invoice)
}

func (g *generator) SettleTimeout() (timeout time.Duration) { return time.Second }

func Test_Fake(t *testing.T) {
	fake := newFakeLightning()
	w := lnd.New(fake, lnd.Config{})
	testsuite.Test(t, w, &generator{fake: fake})
}

func Test_SubscribeFailure(t *testing.T) {
	assertions := assert.New(t)

	fake := newFakeLightning()
	fake.subscribeErr = errors.New("connection refused")
	w := lnd.New(fake, lnd.Config{})

	_, err := w.SubscribeNotifications(context.Background(), func(wallets.Notification) {})
	assertions.True(errors.Is(err, wallets.ErrNotConnected), "expecting not connected: %v", err)
}

func Test_Reconnect(t *testing.T) {
	assertions := assert.New(t)
	ctx := context.Background()

	fake := newFakeLightning()
	w := lnd.New(fake, lnd.Config{ReconnectDelay: 10 * time.Millisecond})

	received := make(chan wallets.Notification, 8)
	unsubscribe, err := w.SubscribeNotifications(ctx, func(n wallets.Notification) { received <- n })
	if !assertions.Nil(err, "failed to subscribe") {
		return
	}
	defer unsubscribe()

	first, _ := w.MakeInvoice(ctx, wallets.MakeInvoiceRequest{Amount: 1_000})
	second, _ := w.MakeInvoice(ctx, wallets.MakeInvoiceRequest{Amount: 2_000})

	assertions.Nil(fake.settle(first.Invoice))
	select {
	case n := <-received:
		assertions.Equal(first.Invoice, n.Transaction.Invoice)
	case <-time.After(time.Second):
		assertions.Fail("first notification not received")
		return
	}

	// Settled while the stream is down. Replayed from the settle index
	fake.breakStreams()
	assertions.Nil(fake.settle(second.Invoice))

	select {
	case n := <-received:
		assertions.Equal(second.Invoice, n.Transaction.Invoice)
		assertions.Equal(uint64(2_000), n.Transaction.Amount)
	case <-time.After(5 * time.Second):
		assertions.Fail("replayed notification not received")
	}
	assertions.GreaterOrEqual(fake.subscribeCalls(), 2, "stream should be reopened")
}

func Test_Unsubscribe(t *testing.T) {
	assertions := assert.New(t)
	ctx := context.Background()

	fake := newFakeLightning()
	w := lnd.New(fake, lnd.Config{})

	var mu sync.Mutex
	var calls int
	unsubscribe, err := w.SubscribeNotifications(ctx, func(wallets.Notification) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	})
	assertions.Nil(err, "failed to subscribe")
	unsubscribe()
	unsubscribe()

	invoice, _ := w.MakeInvoice(ctx, wallets.MakeInvoiceRequest{Amount: 1_000})
	assertions.Nil(fake.settle(invoice.Invoice))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assertions.Zero(calls, "handler called after unsubscribe")
}

func Test_ListTransactions(t *testing.T) {
	incoming := func(limit uint64) wallets.ListTransactionsRequest {
		return wallets.ListTransactionsRequest{Direction: wallets.DirectionIncoming, Limit: limit}
	}
	makeInvoices := func(t *testing.T, w *lnd.Wallet, n int) (invoices []wallets.Invoice) {
		for range n {
			invoice, err := w.MakeInvoice(context.Background(), wallets.MakeInvoiceRequest{Amount: 1_000})
			if err != nil {
				t.Fatalf("failed to make invoice: %v", err)
			}
			invoices = append(invoices, invoice)
		}
		return invoices
	}

	t.Run("Settled Out Of Creation Order", func(t *testing.T) {
		assertions := assert.New(t)
		ctx := context.Background()

		fake := newFakeLightning()
		w := lnd.New(fake, lnd.Config{})
		invoices := makeInvoices(t, w, 150)

		// The oldest invoice is the latest settlement
		assertions.Nil(fake.settle(invoices[139].Invoice))
		assertions.Nil(fake.settle(invoices[0].Invoice))

		txs, err := w.ListTransactions(ctx, incoming(1))
		if assertions.Nil(err, "failed to list") && assertions.Len(txs, 1) {
			assertions.Equal(invoices[0].Invoice, txs[0].Invoice)
		}

		txs, err = w.ListTransactions(ctx, incoming(2))
		if assertions.Nil(err, "failed to list") && assertions.Len(txs, 2) {
			assertions.Equal(invoices[0].Invoice, txs[0].Invoice)
			assertions.Equal(invoices[139].Invoice, txs[1].Invoice)
		}
	})
	t.Run("Stops At Expired Invoices", func(t *testing.T) {
		assertions := assert.New(t)

		fake := newFakeLightning()
		w := lnd.New(fake, lnd.Config{})
		invoices := makeInvoices(t, w, 300)
		for index := range uint64(200) {
			fake.age(index+1, 10*24*time.Hour, 3600)
		}
		assertions.Nil(fake.settle(invoices[249].Invoice))

		before := fake.listInvoiceCalls()
		txs, err := w.ListTransactions(context.Background(), incoming(1))
		if assertions.Nil(err, "failed to list") && assertions.Len(txs, 1) {
			assertions.Equal(invoices[249].Invoice, txs[0].Invoice)
		}
		assertions.Equal(2, fake.listInvoiceCalls()-before, "pages scanned")
	})
	t.Run("Scan Limit", func(t *testing.T) {
		assertions := assert.New(t)

		fake := newFakeLightning()
		w := lnd.New(fake, lnd.Config{ScanSize: 20, MaxScan: 50})
		invoices := makeInvoices(t, w, 100)
		assertions.Nil(fake.settle(invoices[0].Invoice))
		assertions.Nil(fake.settle(invoices[99].Invoice))

		before := fake.listInvoiceCalls()
		txs, err := w.ListTransactions(context.Background(), incoming(0))
		if assertions.Nil(err, "failed to list") && assertions.Len(txs, 1) {
			assertions.Equal(invoices[99].Invoice, txs[0].Invoice)
		}
		assertions.Equal(3, fake.listInvoiceCalls()-before, "pages scanned")
	})
}
