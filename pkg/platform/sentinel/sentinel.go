package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Cache backends, the ledger adapter
// and the metadata resolver return these (optionally wrapped) so services can
// translate them into domain errors.
//
// - ErrNotFound: key or record does not exist (cache miss, unknown token)
// - ErrExpired: cached entry is past its freshness window
// - ErrInvalidState: entity in wrong state for requested operation
// - ErrUnavailable: backend temporarily unavailable (open circuit, closed store)
var (
	ErrNotFound     = errors.New("not found")
	ErrExpired      = errors.New("expired")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
