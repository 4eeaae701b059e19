package watch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/RogueTeam/paywatch/wallets"
)

// Subscription forwards the backend's payment_received notifications
type Subscription struct {
	wallet wallets.Wallet
	logger *slog.Logger
}

var _ Channel = (*Subscription)(nil)

func NewSubscription(wallet wallets.Wallet, logger *slog.Logger) (s *Subscription) {
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscription{wallet: wallet, logger: logger}
}

func (s *Subscription) Run(ctx context.Context, snapshots chan<- wallets.Transaction) (err error) {
	unsubscribe, err := s.wallet.SubscribeNotifications(ctx, func(n wallets.Notification) {
		if n.Type != wallets.NotificationPaymentReceived {
			return
		}
		select {
		case snapshots <- n.Transaction:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to notifications: %w", err)
	}
	defer unsubscribe()

	s.logger.Debug("subscribed to notifications")
	<-ctx.Done()
	return nil
}
