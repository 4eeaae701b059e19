package lnd

import (
	"cmp"
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/RogueTeam/paywatch/utils"
	"github.com/RogueTeam/paywatch/wallets"
	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/macaroons"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"gopkg.in/macaroon.v2"
)

const (
	DefaultScanSize       = 100
	DefaultMaxScan        = 10_000
	DefaultInvoiceExpiry  = 24 * 60 * 60
	DefaultReconnectDelay = time.Second
	MaxReconnectDelay     = 30 * time.Second
)

type Config struct {
	// gRPC address of the node. Example: 127.0.0.1:10009
	Host         string
	TLSCertPath  string
	MacaroonPath string
	// Page size used when listing invoices/payments
	ScanSize uint64
	// Upper bound of invoices scanned when looking for the latest settlements
	MaxScan uint64
	// Initial wait before reopening a broken invoice stream
	ReconnectDelay time.Duration
	Logger         *slog.Logger
}

// Wallet backed by an LND node. Settled invoices are pushed through SubscribeInvoices
type Wallet struct {
	client         lnrpc.LightningClient
	conn           *grpc.ClientConn
	scanSize       uint64
	maxScan        uint64
	reconnectDelay time.Duration
	logger         *slog.Logger
}

var _ wallets.Wallet = (*Wallet)(nil)

var capabilities = []string{
	wallets.CapabilityNotifications,
	wallets.CapabilityListTransactions,
	wallets.CapabilityMakeInvoice,
	wallets.CapabilityGetBalance,
}

// Dial connects to the node using TLS and macaroon credentials
func Dial(config Config) (w *Wallet, err error) {
	creds, err := credentials.NewClientTLSFromFile(config.TLSCertPath, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS cert: %w", err)
	}

	macBytes, err := os.ReadFile(config.MacaroonPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read macaroon: %w", err)
	}

	mac := &macaroon.Macaroon{}
	err = mac.UnmarshalBinary(macBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal macaroon: %w", err)
	}

	macCreds, err := macaroons.NewMacaroonCredential(mac)
	if err != nil {
		return nil, fmt.Errorf("failed to create macaroon credential: %w", err)
	}

	conn, err := grpc.Dial(config.Host,
		grpc.WithTransportCredentials(creds),
		grpc.WithPerRPCCredentials(macCreds),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial LND: %w", err)
	}

	w = New(lnrpc.NewLightningClient(conn), config)
	w.conn = conn
	return w, nil
}

// New wraps an existing client
func New(client lnrpc.LightningClient, config Config) (w *Wallet) {
	w = &Wallet{
		client:         client,
		scanSize:       config.ScanSize,
		maxScan:        config.MaxScan,
		reconnectDelay: config.ReconnectDelay,
		logger:         config.Logger,
	}
	if w.scanSize == 0 {
		w.scanSize = DefaultScanSize
	}
	if w.maxScan == 0 {
		w.maxScan = DefaultMaxScan
	}
	if w.reconnectDelay == 0 {
		w.reconnectDelay = DefaultReconnectDelay
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	w.logger = w.logger.With("wallet", "lnd")
	return w
}

func (w *Wallet) Close() (err error) {
	if w.conn == nil {
		return nil
	}
	return w.conn.Close()
}

func (w *Wallet) Capabilities() (c []string) {
	return slices.Clone(capabilities)
}

func convertInvoice(invoice *lnrpc.Invoice) (tx wallets.Transaction) {
	tx = wallets.Transaction{
		PaymentHash: hex.EncodeToString(invoice.RHash),
		Direction:   wallets.DirectionIncoming,
		Amount:      utils.Unsigned(invoice.AmtPaidMsat),
		Invoice:     invoice.PaymentRequest,
	}
	if tx.Amount == 0 {
		tx.Amount = utils.Unsigned(invoice.ValueMsat)
	}
	if invoice.State == lnrpc.Invoice_SETTLED {
		settledAt := time.Unix(invoice.SettleDate, 0)
		tx.SettledAt = &settledAt
	}
	return tx
}

func convertPayment(payment *lnrpc.Payment) (tx wallets.Transaction) {
	tx = wallets.Transaction{
		PaymentHash: payment.PaymentHash,
		Direction:   wallets.DirectionOutgoing,
		Amount:      utils.Unsigned(payment.ValueMsat),
		Invoice:     payment.PaymentRequest,
	}
	if payment.Status == lnrpc.Payment_SUCCEEDED {
		settledAt := time.Unix(0, payment.CreationTimeNs)
		tx.SettledAt = &settledAt
	}
	return tx
}

// SubscribeNotifications forwards settled invoices to handler. A broken stream is reopened
// from the last seen settle index so settlements during the gap are replayed
func (w *Wallet) SubscribeNotifications(ctx context.Context, handler wallets.NotificationHandler) (unsubscribe func(), err error) {
	subCtx, cancel := context.WithCancel(ctx)

	stream, err := w.client.SubscribeInvoices(subCtx, &lnrpc.InvoiceSubscription{})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: failed to subscribe to invoices: %w", wallets.ErrNotConnected, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)

		var settleIndex uint64
		delay := w.reconnectDelay
		for {
			for {
				invoice, err := stream.Recv()
				if err != nil {
					if subCtx.Err() == nil {
						w.logger.Warn("invoice stream broken", "error", err)
					}
					break
				}
				delay = w.reconnectDelay

				if invoice.State != lnrpc.Invoice_SETTLED {
					continue
				}
				settleIndex = max(settleIndex, invoice.SettleIndex)
				handler(wallets.Notification{
					Type:        wallets.NotificationPaymentReceived,
					Transaction: convertInvoice(invoice),
				})
			}

			for {
				if !utils.Sleep(subCtx, delay) {
					return
				}
				stream, err = w.client.SubscribeInvoices(subCtx, &lnrpc.InvoiceSubscription{SettleIndex: settleIndex})
				if err == nil {
					w.logger.Info("invoice stream reopened", "settle_index", settleIndex)
					break
				}
				w.logger.Warn("failed to reopen invoice stream", "error", err, "retry_in", delay)
				delay = min(2*delay, MaxReconnectDelay)
			}
		}
	}()

	var once sync.Once
	unsubscribe = func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
	return unsubscribe, nil
}

// Latest settled invoices ordered by settle index, newest first.
// Invoices are listed by creation, so older pages are scanned until none of them
// could have settled after the ones already collected
func (w *Wallet) settledInvoices(ctx context.Context, limit uint64) (settled []*lnrpc.Invoice, err error) {
	var (
		offset    uint64
		scanned   uint64
		maxExpiry int64
	)
	for scanned < w.maxScan {
		res, err := w.client.ListInvoices(ctx, &lnrpc.ListInvoiceRequest{
			Reversed:       true,
			IndexOffset:    offset,
			NumMaxInvoices: min(w.scanSize, w.maxScan-scanned),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list invoices: %w", err)
		}
		if len(res.Invoices) == 0 {
			break
		}
		scanned += uint64(len(res.Invoices))

		oldest := res.Invoices[0].CreationDate
		for _, invoice := range res.Invoices {
			oldest = min(oldest, invoice.CreationDate)
			expiry := invoice.Expiry
			if expiry <= 0 {
				expiry = DefaultInvoiceExpiry
			}
			maxExpiry = max(maxExpiry, expiry)
			if invoice.State == lnrpc.Invoice_SETTLED {
				settled = append(settled, invoice)
			}
		}
		slices.SortFunc(settled, func(a, b *lnrpc.Invoice) int {
			return cmp.Compare(b.SettleIndex, a.SettleIndex)
		})
		if limit > 0 && uint64(len(settled)) >= limit {
			settled = settled[:limit]
			// Older invoices expired before the last kept settlement
			if oldest+maxExpiry < settled[len(settled)-1].SettleDate {
				break
			}
		}

		if res.FirstIndexOffset <= 1 {
			break
		}
		offset = res.FirstIndexOffset
	}
	if scanned >= w.maxScan {
		w.logger.Debug("invoice scan limit reached", "scanned", scanned)
	}
	return settled, nil
}

func (w *Wallet) ListTransactions(ctx context.Context, req wallets.ListTransactionsRequest) (txs []wallets.Transaction, err error) {
	switch req.Direction {
	case wallets.DirectionIncoming:
		settled, err := w.settledInvoices(ctx, req.Limit)
		if err != nil {
			return nil, err
		}
		for _, invoice := range settled {
			txs = append(txs, convertInvoice(invoice))
		}
		return txs, nil
	case wallets.DirectionOutgoing:
		res, err := w.client.ListPayments(ctx, &lnrpc.ListPaymentsRequest{
			Reversed:    true,
			MaxPayments: w.scanSize,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list payments: %w", err)
		}

		var succeeded []*lnrpc.Payment
		for _, payment := range res.Payments {
			if payment.Status == lnrpc.Payment_SUCCEEDED {
				succeeded = append(succeeded, payment)
			}
		}
		slices.SortFunc(succeeded, func(a, b *lnrpc.Payment) int {
			return cmp.Compare(b.CreationTimeNs, a.CreationTimeNs)
		})
		for _, payment := range succeeded {
			if req.Limit > 0 && uint64(len(txs)) >= req.Limit {
				break
			}
			txs = append(txs, convertPayment(payment))
		}
		return txs, nil
	default:
		return nil, wallets.ErrInvalidDirection
	}
}

func (w *Wallet) MakeInvoice(ctx context.Context, req wallets.MakeInvoiceRequest) (invoice wallets.Invoice, err error) {
	res, err := w.client.AddInvoice(ctx, &lnrpc.Invoice{
		Memo:      req.Description,
		ValueMsat: utils.Signed[int64](req.Amount),
	})
	if err != nil {
		return invoice, fmt.Errorf("failed to add invoice: %w", err)
	}

	invoice = wallets.Invoice{
		Invoice:     res.PaymentRequest,
		PaymentHash: hex.EncodeToString(res.RHash),
		Amount:      req.Amount,
		CreatedAt:   time.Now(),
	}
	return invoice, nil
}

func (w *Wallet) Balance(ctx context.Context) (balance wallets.Balance, err error) {
	res, err := w.client.ChannelBalance(ctx, &lnrpc.ChannelBalanceRequest{})
	if err != nil {
		return balance, fmt.Errorf("failed to get channel balance: %w", err)
	}
	return wallets.Balance{Amount: res.GetLocalBalance().GetMsat()}, nil
}
