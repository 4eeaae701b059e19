package random

import (
	crand "crypto/rand"
	"encoding/hex"
	"math/rand/v2"
)

const (
	CharsetAlphaNumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	CharsetDigits       = "0123456789"
)

var (
	PseudoRand = rand.New(rand.NewPCG(0xFF_FF_FF_FF, 0xAA_BB_CC_DD))
)

func CryptoRand() (r *rand.Rand) {
	var seed [32]byte
	crand.Reader.Read(seed[:])
	return rand.New(rand.NewChaCha8(seed))
}

func String(r *rand.Rand, options string, length int) (s string) {
	rOptions := []rune(options)

	var temp = make([]rune, length)
	for index := range temp {
		temp[index] = rOptions[r.IntN(len(rOptions))]
	}
	return string(temp)
}

// Hex returns size random bytes hex encoded. Used for payment hashes and invoice tokens
func Hex(r *rand.Rand, size int) (s string) {
	var buf = make([]byte, size)
	for index := range buf {
		buf[index] = byte(r.Uint32())
	}
	return hex.EncodeToString(buf)
}
