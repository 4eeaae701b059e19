package watch

import "github.com/RogueTeam/paywatch/wallets"

const (
	KindSubscription ChannelKind = "subscription"
	KindPolling      ChannelKind = "polling"
)

// ChannelKind is the detection channel variant a session uses
type ChannelKind string

// SelectChannel picks the channel for a new session. Decided once per session
func SelectChannel(capabilities []string) (kind ChannelKind) {
	if wallets.HasCapability(capabilities, wallets.CapabilityNotifications) {
		return KindSubscription
	}
	return KindPolling
}
