package watch

import (
	"context"

	"github.com/RogueTeam/paywatch/wallets"
)

// Channel delivers newly observed transactions to a session.
//
// Run blocks until ctx is done and then returns nil. It returns an error only when the
// channel could not be established. Nothing is sent on snapshots after Run returns
type Channel interface {
	Run(ctx context.Context, snapshots chan<- wallets.Transaction) (err error)
}

// Used when there is no backend to detect with
type brokenChannel struct {
	err error
}

func (c brokenChannel) Run(ctx context.Context, snapshots chan<- wallets.Transaction) (err error) {
	return c.err
}
