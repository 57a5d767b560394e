// Package credentials generates initial credentials for accounts created on a
// buyer's behalf.
package credentials

import (
	"crypto/rand"
	"math/big"
	"strings"
	"unicode"
)

// PasswordLength is the length of generated account passwords
const PasswordLength = 16

// Ambiguous glyphs (0/O, 1/l/I) are left out so the password can be retyped from an email.
const passwordChars = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GeneratePassword returns a random password of PasswordLength characters
func GeneratePassword() (string, error) {
	password := make([]byte, PasswordLength)
	max := big.NewInt(int64(len(passwordChars)))

	for i := range password {
		num, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		password[i] = passwordChars[num.Int64()]
	}

	return string(password), nil
}

// DisplayNameFromEmail derives a friendly name from the local part of an
// address: "jane.doe+news@example.com" becomes "Jane Doe".
func DisplayNameFromEmail(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	local, _, _ = strings.Cut(local, "+")

	words := strings.FieldsFunc(local, func(r rune) bool {
		return r == '.' || r == '_' || r == '-'
	})
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}

	name := strings.Join(words, " ")
	if name == "" {
		return "Learner"
	}
	return name
}
