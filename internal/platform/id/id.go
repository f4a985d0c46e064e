// Package id generates webpay identifiers.
package id

import (
	"strings"

	"github.com/google/uuid"
)

// TransIDPrefix namespaces transaction IDs minted by webpay.
const TransIDPrefix = "webpay:"

// NewTransID generates a unique transaction ID.
func NewTransID() string {
	return TransIDPrefix + uuid.NewString()
}

// IsTransID reports whether value looks like a webpay transaction ID.
func IsTransID(value string) bool {
	rest, ok := strings.CutPrefix(value, TransIDPrefix)
	if !ok {
		return false
	}
	_, err := uuid.Parse(rest)
	return err == nil
}
