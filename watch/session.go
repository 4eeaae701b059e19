package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/RogueTeam/paywatch/wallets"
	"github.com/google/uuid"
)

var (
	ErrDetectionUnavailable = errors.New("payment detection unavailable")
	ErrChannelClosed        = errors.New("detection channel closed")
)

const (
	StatusActive    Status = "active"
	StatusMatched   Status = "matched"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

type Status string

func (s Status) Terminal() (terminal bool) {
	return s != StatusActive
}

// Handlers run on the session goroutine, at most one of them and at most once.
// They must not Wait on their own session
type Handlers struct {
	OnMatched func(tx wallets.Transaction)
	OnFailed  func(err error)
}

type SessionConfig struct {
	Request  Request
	Kind     ChannelKind
	Channel  Channel
	Handlers Handlers
	Logger   *slog.Logger
}

// Session watches a single request until it is matched, cancelled or failed
type Session struct {
	id       uuid.UUID
	request  Request
	kind     ChannelKind
	channel  Channel
	gate     *Gate
	handlers Handlers
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	status  Status
	matched *wallets.Transaction
	err     error
}

// StartSession runs config.Channel until the session reaches a terminal status.
// Cancelling ctx is equivalent to calling Cancel
func StartSession(ctx context.Context, config SessionConfig) (s *Session) {
	s = &Session{
		id:       uuid.New(),
		request:  config.Request,
		kind:     config.Kind,
		channel:  config.Channel,
		gate:     NewGate(config.Request.Token),
		handlers: config.Handlers,
		logger:   config.Logger,
		done:     make(chan struct{}),
		status:   StatusActive,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("session", s.id.String(), "channel", string(s.kind))
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.logger.Debug("session started", "token", s.request.Token)
	go s.run()
	return s
}

func (s *Session) run() {
	defer close(s.done)

	snapshots := make(chan wallets.Transaction)
	channelDone := make(chan struct{})
	var channelErr error
	go func() {
		defer close(channelDone)
		channelErr = s.channel.Run(s.ctx, snapshots)
	}()
	defer func() {
		s.cancel()
		<-channelDone
	}()

	for {
		select {
		case <-s.ctx.Done():
			s.finish(StatusCancelled, nil, nil)
			return
		case <-channelDone:
			if s.ctx.Err() != nil {
				s.finish(StatusCancelled, nil, nil)
				return
			}
			err := channelErr
			if err == nil {
				err = ErrChannelClosed
			}
			s.fail(err)
			return
		case tx := <-snapshots:
			// select picks randomly when the parent context is done too
			if s.ctx.Err() != nil {
				s.finish(StatusCancelled, nil, nil)
				return
			}
			if !s.gate.Accept(tx) {
				s.logger.Debug("snapshot ignored", "payment_hash", tx.PaymentHash, "invoice", tx.Invoice)
				continue
			}
			s.match(tx)
			return
		}
	}
}

// Returns false when the session already reached a terminal status
func (s *Session) finish(status Status, tx *wallets.Transaction, err error) (ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status.Terminal() {
		return false
	}
	s.status = status
	s.matched = tx
	s.err = err
	return true
}

func (s *Session) match(tx wallets.Transaction) {
	if !s.finish(StatusMatched, &tx, nil) {
		return
	}
	s.cancel()

	s.logger.Info("payment detected", "payment_hash", tx.PaymentHash, "amount", tx.Amount)
	if s.handlers.OnMatched != nil {
		s.handlers.OnMatched(tx)
	}
}

func (s *Session) fail(cause error) {
	err := fmt.Errorf("%w: %w", ErrDetectionUnavailable, cause)
	if !s.finish(StatusFailed, nil, err) {
		return
	}
	s.cancel()

	s.logger.Error("payment detection failed", "error", cause)
	if s.handlers.OnFailed != nil {
		s.handlers.OnFailed(err)
	}
}

// Cancel stops the session. No handler starts after Cancel returns. Safe to call many times
func (s *Session) Cancel() {
	if s.finish(StatusCancelled, nil, nil) {
		s.logger.Debug("session cancelled")
	}
	s.cancel()
}

// Wait blocks until the channel is fully stopped
func (s *Session) Wait() {
	<-s.done
}

func (s *Session) Done() (done <-chan struct{}) {
	return s.done
}

func (s *Session) ID() (id uuid.UUID) {
	return s.id
}

func (s *Session) Request() (req Request) {
	return s.request
}

func (s *Session) Kind() (kind ChannelKind) {
	return s.kind
}

func (s *Session) Status() (status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}

// Matched returns the transaction that settled the request
func (s *Session) Matched() (tx wallets.Transaction, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.matched == nil {
		return tx, false
	}
	return *s.matched, true
}

// Err returns the failure cause. Nil unless the session failed
func (s *Session) Err() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.err
}
