package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrValidation         = errors.New("invalid request")
	ErrConfiguration      = errors.New("service not configured")
	ErrQuotaExceeded      = errors.New("insufficient credits")
	ErrProviderFailure    = errors.New("provider failure")
	ErrEnrichmentFailure  = errors.New("enrichment failure")
	ErrDuplicateOperation = errors.New("duplicate operation")
)
