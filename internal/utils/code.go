package utils

import (
	"crypto/rand" // Random bytes for code generation
	"math/big"    // Arbitrary-precision ints for unbiased sampling
)

// Alphabet for class codes: upper-case letters and digits without the
// easily-confused 0/O and 1/I pairs.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateClassCode returns a short human-typable join code. Uniqueness is
// enforced by the database index; callers retry on a collision.
func GenerateClassCode(length int) (string, error) {
	code := make([]byte, length)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		code[i] = codeAlphabet[n.Int64()]
	}
	return string(code), nil
}
