package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and provider adapters
// return these (optionally wrapped) so services can translate them into
// coded domain errors at the boundary.
//
// These describe factual resource states, not validation failures:
// - ErrNotFound: entity does not exist in the store
// - ErrConflict: a competing non-terminal entity already exists
// - ErrExpired: operation/record expired before reaching a terminal state
// - ErrTerminal: entity is already in an absorbing terminal state
//
// For bad input use pkg/domain-errors directly.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrExpired  = errors.New("expired")
	ErrTerminal = errors.New("already terminal")
)
