package issuer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/louisbranch/webpay/internal/platform/errors"
)

// TypeServiceToken is the typ of bearer tokens the marketplace presents to
// webpay's internal endpoints.
const TypeServiceToken = "mozilla/payments/webpay/internal/v1"

// maxServiceTokenTTL bounds how far in the future a service token may expire.
const maxServiceTokenTTL = 10 * time.Minute

type serviceClaims struct {
	jwt.RegisteredClaims
	Type string `json:"typ"`
}

// VerifyServiceToken checks a bearer token signed by the marketplace with the
// shared webpay key and secret.
func (r *Resolver) VerifyServiceToken(token string) error {
	if r == nil || r.key == "" || r.secret == "" {
		return apperrors.New(apperrors.CodeUnauthenticated, "service tokens are not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return apperrors.New(apperrors.CodeUnauthenticated, "service token is required")
	}

	var claims serviceClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(r.secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(r.key),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeUnauthenticated, "service token is invalid", err)
	}
	if claims.Type != TypeServiceToken {
		return apperrors.New(apperrors.CodeUnauthenticated, fmt.Sprintf("service token typ %q is not accepted", claims.Type))
	}
	if time.Until(claims.ExpiresAt.Time) > maxServiceTokenTTL {
		return apperrors.New(apperrors.CodeUnauthenticated, "service token lifetime is too long")
	}
	return nil
}

// SignServiceToken mints a bearer token for webpay's internal endpoints.
func SignServiceToken(key, secret string, issuedAt time.Time, ttl time.Duration) (string, error) {
	if key == "" || secret == "" {
		return "", errors.New("service token key and secret are required")
	}
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}
	if ttl <= 0 || ttl > maxServiceTokenTTL {
		ttl = maxServiceTokenTTL
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, serviceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    key,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
		},
		Type: TypeServiceToken,
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign service token: %w", err)
	}
	return signed, nil
}
