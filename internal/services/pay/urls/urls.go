// Package urls validates app postback and chargeback URLs.
package urls

import (
	"fmt"
	"slices"
	"strings"

	apperrors "github.com/louisbranch/webpay/internal/platform/errors"
)

// Options controls callback URL validation.
type Options struct {
	// AllowedSchemes lists the schemes accepted for real postbacks.
	AllowedSchemes []string
	// IsSimulation relaxes the scheme check for simulated payments.
	IsSimulation bool
	// SkipPostbackCheck disables the scheme check entirely.
	SkipPostbackCheck bool
}

// Verify checks that every URL has a scheme and a network location and, for
// real postbacks, uses an allowed scheme. It stops at the first invalid URL.
// Hosts and paths are not validated further: apps may use any host name
// their DNS serves, underscores included.
func Verify(opts Options, rawURLs ...string) error {
	for _, raw := range rawURLs {
		scheme, netloc, ok := split(raw)
		if !ok || scheme == "" || netloc == "" {
			return apperrors.WithMetadata(
				apperrors.CodeInvalidURL,
				fmt.Sprintf("Invalid URL: %s", raw),
				map[string]string{"URL": raw},
			)
		}
		if opts.SkipPostbackCheck || opts.IsSimulation {
			continue
		}
		if !slices.Contains(opts.AllowedSchemes, scheme) {
			return apperrors.WithMetadata(
				apperrors.CodeCallbackScheme,
				fmt.Sprintf("Schema must be one of: [%s] not %s", strings.Join(opts.AllowedSchemes, ", "), raw),
				map[string]string{"URL": raw, "Scheme": scheme},
			)
		}
	}
	return nil
}

// split extracts the lowercased scheme and the network location of raw. The
// scheme is everything before the first colon when it starts with a letter
// and holds only letters, digits, "+", "-" and "."; the network location
// follows a "//" and ends at the first "/", "?" or "#". ok is false only for
// an unbalanced IPv6 bracket.
func split(raw string) (scheme, netloc string, ok bool) {
	rest := strings.TrimLeftFunc(raw, func(r rune) bool { return r <= ' ' })
	rest = strings.NewReplacer("\t", "", "\r", "", "\n", "").Replace(rest)

	if i := strings.IndexByte(rest, ':'); i > 0 && isScheme(rest[:i]) {
		scheme, rest = strings.ToLower(rest[:i]), rest[i+1:]
	}
	if after, found := strings.CutPrefix(rest, "//"); found {
		end := strings.IndexAny(after, "/?#")
		if end < 0 {
			end = len(after)
		}
		netloc = after[:end]
	}
	if strings.Contains(netloc, "[") != strings.Contains(netloc, "]") {
		return "", "", false
	}
	return scheme, netloc, true
}

func isScheme(s string) bool {
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}
