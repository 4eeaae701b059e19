package watch

import (
	"context"
	"log/slog"
	"time"

	"github.com/RogueTeam/paywatch/utils"
	"github.com/RogueTeam/paywatch/wallets"
)

const DefaultPollInterval = time.Second

// PollState is owned by a single polling channel
type PollState struct {
	// Identifier returned by the latest successful tick
	PreviousPaymentHash string
	// Successful ticks so far
	PollCount uint64
}

// Observe records the result of a successful tick. latest is nil when the backend has
// no incoming transaction. Returns true when latest appeared after polling started
func (s *PollState) Observe(latest *wallets.Transaction) (fresh bool) {
	defer func() { s.PollCount++ }()

	if latest == nil {
		return false
	}
	fresh = s.PollCount > 0 && latest.PaymentHash != s.PreviousPaymentHash
	s.PreviousPaymentHash = latest.PaymentHash
	return fresh
}

// Polling queries the most recent incoming transaction on a fixed interval
type Polling struct {
	wallet   wallets.Wallet
	interval time.Duration
	state    *PollState
	logger   *slog.Logger
}

var _ Channel = (*Polling)(nil)

func NewPolling(wallet wallets.Wallet, interval time.Duration, state *PollState, logger *slog.Logger) (p *Polling) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if state == nil {
		state = &PollState{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Polling{
		wallet:   wallet,
		interval: interval,
		state:    state,
		logger:   logger,
	}
}

func (p *Polling) Run(ctx context.Context, snapshots chan<- wallets.Transaction) (err error) {
	for ctx.Err() == nil {
		p.tick(ctx, snapshots)

		if !utils.Sleep(ctx, p.interval) {
			break
		}
	}
	return nil
}

// A failed query leaves the state untouched. Counting it would let a payment
// that existed before start look new on the next tick
func (p *Polling) tick(ctx context.Context, snapshots chan<- wallets.Transaction) {
	txs, err := p.wallet.ListTransactions(ctx, wallets.ListTransactionsRequest{
		Direction: wallets.DirectionIncoming,
		Limit:     1,
	})
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("failed to poll transactions", "error", err, "poll_count", p.state.PollCount)
		}
		return
	}

	var latest *wallets.Transaction
	if len(txs) > 0 {
		latest = &txs[0]
	}
	if !p.state.Observe(latest) {
		return
	}

	p.logger.Debug("new incoming transaction", "payment_hash", latest.PaymentHash, "poll_count", p.state.PollCount)
	select {
	case snapshots <- *latest:
	case <-ctx.Done():
	}
}
