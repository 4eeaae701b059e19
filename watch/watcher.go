package watch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/RogueTeam/paywatch/wallets"
)

type Config struct {
	// Nil means there is no connection. Every session fails immediately
	Wallet wallets.Wallet
	// Polling channel interval. Defaults to DefaultPollInterval
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Watcher starts detection sessions against a single wallet
type Watcher struct {
	wallet       wallets.Wallet
	pollInterval time.Duration
	logger       *slog.Logger
}

func New(config Config) (w *Watcher) {
	w = &Watcher{
		wallet:       config.Wallet,
		pollInterval: config.PollInterval,
		logger:       config.Logger,
	}
	if w.pollInterval <= 0 {
		w.pollInterval = DefaultPollInterval
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

func (w *Watcher) Wallet() (wallet wallets.Wallet) {
	return w.wallet
}

// Watch starts a session for req. The channel is chosen from the wallet's capabilities
func (w *Watcher) Watch(ctx context.Context, req Request, handlers Handlers) (s *Session) {
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}

	config := SessionConfig{
		Request:  req,
		Handlers: handlers,
		Logger:   w.logger,
	}
	if w.wallet == nil {
		config.Kind = KindPolling
		config.Channel = brokenChannel{err: wallets.ErrNotConnected}
		return StartSession(ctx, config)
	}

	config.Kind = SelectChannel(w.wallet.Capabilities())
	switch config.Kind {
	case KindSubscription:
		config.Channel = NewSubscription(w.wallet, w.logger)
	default:
		config.Channel = NewPolling(w.wallet, w.pollInterval, nil, w.logger)
	}
	return StartSession(ctx, config)
}

// WatchForPayment watches token and returns the function that cancels the session
func (w *Watcher) WatchForPayment(ctx context.Context, token string, handlers Handlers) (cancel func()) {
	s := w.Watch(ctx, Request{Token: token, CreatedAt: time.Now()}, handlers)
	return s.Cancel
}

// Slot holds at most one live session for its owner. Watching again cancels the previous
// session before the new one starts
type Slot struct {
	mu      sync.Mutex
	session *Session
}

func (s *Slot) Watch(ctx context.Context, w *Watcher, req Request, handlers Handlers) (session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		s.session.Cancel()
	}
	s.session = w.Watch(ctx, req, handlers)
	return s.session
}

func (s *Slot) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		s.session.Cancel()
		s.session = nil
	}
}

// Session returns the current session, nil when the slot is empty
func (s *Slot) Session() (session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.session
}
