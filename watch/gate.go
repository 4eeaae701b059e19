package watch

import "github.com/RogueTeam/paywatch/wallets"

// Gate decides which snapshot settles a request. It accepts at most one
type Gate struct {
	token    string
	incoming uint64
	matched  bool
}

func NewGate(token string) (g *Gate) {
	return &Gate{token: token}
}

// Accept reports whether tx settles the request.
//
// Without token the first incoming snapshot is accepted. With token the snapshot must
// report exactly that token, unless the backend reports no token at all, in which case
// only the first incoming snapshot since start is accepted
func (g *Gate) Accept(tx wallets.Transaction) (accepted bool) {
	if g.matched || tx.Direction != wallets.DirectionIncoming {
		return false
	}

	first := g.incoming == 0
	g.incoming++

	switch {
	case g.token == "":
		accepted = true
	case tx.Invoice == g.token:
		accepted = true
	case tx.Invoice == "" && first:
		accepted = true
	}
	g.matched = accepted
	return accepted
}

func (g *Gate) Matched() (matched bool) {
	return g.matched
}
