package random_test

import (
	"testing"

	"github.com/RogueTeam/paywatch/random"
	"github.com/stretchr/testify/assert"
)

func Test_String(t *testing.T) {
	assertions := assert.New(t)

	s := random.String(random.CryptoRand(), random.CharsetDigits, 16)
	assertions.Len(s, 16, "invalid length")
	for _, c := range s {
		assertions.Contains(random.CharsetDigits, string(c), "character outside charset")
	}
}

func Test_Hex(t *testing.T) {
	assertions := assert.New(t)

	r := random.CryptoRand()
	a := random.Hex(r, 32)
	b := random.Hex(r, 32)
	assertions.Len(a, 64, "invalid length")
	assertions.NotEqual(a, b, "expecting different tokens")
}
