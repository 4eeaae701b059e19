package monero

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/RogueTeam/paywatch/internal/walletrpc/rpc"
	"github.com/RogueTeam/paywatch/wallets"
)

const MoneroUnit = 1_000_000_000_000

type Config struct {
	// Account the receiving subaddresses belong to
	AccountIndex uint64
	Client       *rpc.Client
}

// Wallet backed by monero-wallet-rpc. Monero has no push channel, detection polls get_transfers.
// Each request is a fresh subaddress so transfers can be correlated exactly
type Wallet struct {
	account uint64
	client  *rpc.Client
}

var _ wallets.Wallet = (*Wallet)(nil)

var capabilities = []string{
	wallets.CapabilityListTransactions,
	wallets.CapabilityMakeInvoice,
	wallets.CapabilityGetBalance,
}

func (w *Wallet) Capabilities() (c []string) {
	return slices.Clone(capabilities)
}

func (w *Wallet) SubscribeNotifications(ctx context.Context, handler wallets.NotificationHandler) (unsubscribe func(), err error) {
	return nil, fmt.Errorf("monero wallet rpc: %w", wallets.ErrNotificationsUnsupported)
}

func convertTransfer(direction wallets.Direction, t rpc.Transfer) (tx wallets.Transaction) {
	tx = wallets.Transaction{
		PaymentHash: t.Txid,
		Direction:   direction,
		Amount:      t.Amount,
		Invoice:     t.Address,
	}
	if t.Confirmations > 0 {
		settledAt := time.Unix(t.Timestamp, 0)
		tx.SettledAt = &settledAt
	}
	return tx
}

func (w *Wallet) ListTransactions(ctx context.Context, req wallets.ListTransactionsRequest) (txs []wallets.Transaction, err error) {
	err = req.Direction.Validate()
	if err != nil {
		return nil, err
	}

	getTransfers := rpc.GetTransfersRequest{
		AccountIndex: w.account,
		In:           req.Direction == wallets.DirectionIncoming,
		Out:          req.Direction == wallets.DirectionOutgoing,
	}
	res, err := w.client.GetTransfers(ctx, &getTransfers)
	if err != nil {
		return nil, fmt.Errorf("failed to get transfers: %w", err)
	}

	transfers := res.In
	if req.Direction == wallets.DirectionOutgoing {
		transfers = res.Out
	}

	// Newest first
	slices.SortStableFunc(transfers, func(a, b rpc.Transfer) int {
		if c := cmp.Compare(b.Height, a.Height); c != 0 {
			return c
		}
		return cmp.Compare(b.Timestamp, a.Timestamp)
	})

	for _, transfer := range transfers {
		if req.Limit > 0 && uint64(len(txs)) >= req.Limit {
			break
		}
		txs = append(txs, convertTransfer(req.Direction, transfer))
	}
	return txs, nil
}

// MakeInvoice creates a new subaddress. The subaddress is the request token
func (w *Wallet) MakeInvoice(ctx context.Context, req wallets.MakeInvoiceRequest) (invoice wallets.Invoice, err error) {
	var createAddress = rpc.CreateAddressRequest{
		AccountIndex: w.account,
		Label:        req.Description,
	}
	a, err := w.client.CreateAddress(ctx, &createAddress)
	if err != nil {
		return invoice, fmt.Errorf("failed to create address: %w", err)
	}

	err = w.client.Store(ctx)
	if err != nil {
		return invoice, fmt.Errorf("failed to save changes: %w", err)
	}

	invoice = wallets.Invoice{
		Invoice:   a.Address,
		Amount:    req.Amount,
		CreatedAt: time.Now(),
	}
	return invoice, nil
}

func (w *Wallet) Balance(ctx context.Context) (balance wallets.Balance, err error) {
	res, err := w.client.GetBalance(ctx, &rpc.GetBalanceRequest{AccountIndex: w.account})
	if err != nil {
		return balance, fmt.Errorf("failed to get balance: %w", err)
	}
	return wallets.Balance{Amount: res.UnlockedBalance}, nil
}

// Sync refreshes the wallet against the daemon
func (w *Wallet) Sync(ctx context.Context) (err error) {
	_, err = w.client.Refresh(ctx, &rpc.RefreshRequest{})
	if err != nil {
		return fmt.Errorf("failed to refresh wallet: %w", err)
	}
	return nil
}

func New(config Config) (w *Wallet) {
	w = &Wallet{
		account: config.AccountIndex,
		client:  config.Client,
	}
	return w
}
