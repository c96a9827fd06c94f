package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateTemporaryPasswordLengthAndClasses(t *testing.T) {
	for _, length := range []int{MinTemporaryPasswordLength, 8, 16, 32, 64} {
		for i := 0; i < 20; i++ {
			pw, err := GenerateTemporaryPassword(length)
			require.NoError(t, err)
			require.Len(t, pw, length)
			require.True(t, strings.ContainsAny(pw, passwordUpper), "missing upper in %q", pw)
			require.True(t, strings.ContainsAny(pw, passwordLower), "missing lower in %q", pw)
			require.True(t, strings.ContainsAny(pw, passwordDigit), "missing digit in %q", pw)
			require.True(t, strings.ContainsAny(pw, passwordPunct), "missing punct in %q", pw)
		}
	}
}

func TestGenerateTemporaryPasswordAlphabet(t *testing.T) {
	allowed := passwordUpper + passwordLower + passwordDigit + passwordPunct
	pw, err := GenerateTemporaryPassword(32)
	require.NoError(t, err)
	for _, r := range pw {
		require.Contains(t, allowed, string(r))
	}
}

func TestGenerateTemporaryPasswordBelowMinimum(t *testing.T) {
	for _, length := range []int{-1, 0, 3} {
		_, err := GenerateTemporaryPassword(length)
		require.Error(t, err)
	}
}

func TestGenerateTemporaryPasswordNotConstant(t *testing.T) {
	a, err := GenerateTemporaryPassword(16)
	require.NoError(t, err)
	b, err := GenerateTemporaryPassword(16)
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}
