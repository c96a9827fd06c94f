package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	passwordUpper = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	passwordLower = "abcdefghijklmnopqrstuvwxyz"
	passwordDigit = "0123456789"
	passwordPunct = "!#$%&*+-=?@_"

	// MinTemporaryPasswordLength is the floor needed to fit one character of
	// each required class.
	MinTemporaryPasswordLength = 4
)

var passwordClasses = []string{passwordUpper, passwordLower, passwordDigit, passwordPunct}

// GenerateTemporaryPassword returns a printable secret of exactly length
// characters containing at least one upper-case letter, one lower-case
// letter, one digit and one punctuation character.
//
// One character is drawn from each class and the remainder from the full
// alphabet, then the whole buffer is shuffled with a crypto/rand driven
// Fisher-Yates so the guaranteed characters do not sit at fixed positions.
func GenerateTemporaryPassword(length int) (string, error) {
	if length < MinTemporaryPasswordLength {
		return "", fmt.Errorf("temporary password length %d below minimum %d", length, MinTemporaryPasswordLength)
	}

	full := passwordUpper + passwordLower + passwordDigit + passwordPunct

	buf := make([]byte, 0, length)
	for _, class := range passwordClasses {
		c, err := randomChar(class)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	for len(buf) < length {
		c, err := randomChar(full)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}

	for i := len(buf) - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return "", err
		}
		buf[i], buf[j] = buf[j], buf[i]
	}

	return string(buf), nil
}

func randomChar(alphabet string) (byte, error) {
	i, err := randomIndex(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[i], nil
}

func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("read random source: %w", err)
	}
	return int(v.Int64()), nil
}
