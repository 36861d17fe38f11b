package ledger

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// RandomCode returns a generator of fixed-width codes drawn uniformly from
// [10^(digits-1), 10^digits), so a code never starts with zero.
func RandomCode(digits int) CodeGenerator {
	low := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits-1)), nil)
	span := new(big.Int).Sub(new(big.Int).Mul(low, big.NewInt(10)), low)
	return func() (string, error) {
		n, err := rand.Int(rand.Reader, span)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", n.Add(n, low)), nil
	}
}
