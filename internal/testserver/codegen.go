package testserver

import (
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/wrale/device-auth/internal/validation"
)

// User code shape: two groups of four characters from an alphabet without
// vowels or look-alike characters, each character used at most twice
const (
	codeCharset     = "BCDFGHJKLMNPQRSTVWXZ"
	codeGroupSize   = 4
	codeGroups      = 2
	codeMaxRepeats  = 2
	codeMaxAttempts = 100
)

// selectRandomChar picks a character from available without modulo bias
func selectRandomChar(available []rune) (rune, error) {
	n := len(available)
	limit := 256 - (256 % n)

	b := make([]byte, 1)
	for {
		if _, err := rand.Read(b); err != nil {
			return 0, fmt.Errorf("generating random byte: %w", err)
		}
		if int(b[0]) >= limit {
			continue
		}
		return available[int(b[0])%n], nil
	}
}

// generateUserCode returns a code such as "BDWP-HQKX"
func generateUserCode() (string, error) {
	charset := []rune(codeCharset)
	freqs := make(map[rune]int)

	var builder strings.Builder
	for group := 0; group < codeGroups; group++ {
		if group > 0 {
			builder.WriteRune('-')
		}
		for i := 0; i < codeGroupSize; i++ {
			var available []rune
			for _, c := range charset {
				if freqs[c] < codeMaxRepeats {
					available = append(available, c)
				}
			}

			c, err := selectRandomChar(available)
			if err != nil {
				return "", err
			}
			builder.WriteRune(c)
			freqs[c]++
		}
	}
	return builder.String(), nil
}

// uniqueUserCode generates codes until one is not taken
func uniqueUserCode(taken func(normalized string) bool) (string, error) {
	for attempt := 0; attempt < codeMaxAttempts; attempt++ {
		code, err := generateUserCode()
		if err != nil {
			return "", err
		}
		if !taken(validation.NormalizeCode(code)) {
			return code, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique code after %d attempts", codeMaxAttempts)
}
