// Package issuer resolves JWT issuers to their signing secrets.
//
// A pay request is signed either by the marketplace itself, whose key and
// secret live in configuration, or by an app whose issuer is the public ID of
// an active solitude product holding the secret.
package issuer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	apperrors "github.com/louisbranch/webpay/internal/platform/errors"
	"github.com/louisbranch/webpay/internal/services/pay/integration/solitude"
)

// ProductSource fetches active seller products by public ID.
type ProductSource interface {
	GetActiveProduct(ctx context.Context, publicID string) (*solitude.Product, error)
}

// Config holds the marketplace's own issuer credentials.
type Config struct {
	Key    string
	Secret string
}

// Resolver looks up issuer secrets.
type Resolver struct {
	key      string
	secret   string
	products ProductSource
}

// NewResolver creates an issuer resolver.
func NewResolver(cfg Config, products ProductSource) *Resolver {
	return &Resolver{
		key:      strings.TrimSpace(cfg.Key),
		secret:   cfg.Secret,
		products: products,
	}
}

// UnknownIssuerError reports that the JWT issuer is unknown.
type UnknownIssuerError struct {
	Issuer string
	Cause  error
}

func (e *UnknownIssuerError) Error() string {
	return fmt.Sprintf("ObjectDoesNotExist: %v", e.Cause)
}

func (e *UnknownIssuerError) Unwrap() []error {
	return []error{e.Cause, apperrors.New(apperrors.CodeUnknownIssuer, "unknown issuer")}
}

// IsUnknownIssuer reports whether err is an UnknownIssuerError.
func IsUnknownIssuer(err error) bool {
	var target *UnknownIssuerError
	return errors.As(err, &target)
}

// Lookup returns the secret for issuer and the associated product. The
// product is nil for marketplace-issued requests.
func (r *Resolver) Lookup(ctx context.Context, issuer string) (string, *solitude.Product, error) {
	if r == nil {
		return "", nil, fmt.Errorf("issuer resolver is not configured")
	}
	if r.key != "" && issuer == r.key {
		return r.secret, nil, nil
	}
	if r.products == nil {
		return "", nil, fmt.Errorf("product source is not configured")
	}

	// The issuer doubles as the product public ID.
	product, err := r.products.GetActiveProduct(ctx, issuer)
	if errors.Is(err, solitude.ErrNotFound) {
		log.Printf("get_active_product(%s) raised ObjectDoesNotExist: %v", issuer, err)
		return "", nil, &UnknownIssuerError{Issuer: issuer, Cause: err}
	}
	if err != nil {
		return "", nil, fmt.Errorf("lookup issuer %s: %w", issuer, err)
	}
	return product.Secret, product, nil
}
