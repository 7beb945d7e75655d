// Package tokens genera y hashea los códigos de un solo uso del motor MFA.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
)

// RecoveryAlphabet excludes I, O, 0 and 1.
const RecoveryAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const digits = "0123456789"

// RandomString devuelve n caracteres uniformes de alphabet (crypto/rand).
func RandomString(n int, alphabet string) (string, error) {
	if n <= 0 || alphabet == "" {
		return "", errors.New("tokens: invalid length or alphabet")
	}
	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out), nil
}

// RandomDigits devuelve un código numérico de n dígitos (SMS).
func RandomDigits(n int) (string, error) {
	return RandomString(n, digits)
}

// RecoveryCodes genera count códigos de recuperación de length caracteres.
func RecoveryCodes(count, length int) ([]string, error) {
	codes := make([]string, count)
	for i := range codes {
		c, err := RandomString(length, RecoveryAlphabet)
		if err != nil {
			return nil, err
		}
		codes[i] = c
	}
	return codes, nil
}

// SHA256Hex devuelve sha256(input) en hexadecimal (claves de rate limit).
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
