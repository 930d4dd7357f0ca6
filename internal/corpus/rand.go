package corpus

import (
	"crypto/rand"
	"math/big"
)

func secureIndex(bound int) int {
	if bound <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(bound)))
	if err != nil {
		return 0
	}
	return int(n.Int64())
}
