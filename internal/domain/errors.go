package domain

import "errors"

// Sentinel errors matched with errors.Is at component boundaries to pick
// the right HTTP status / pub-sub ack outcome.
var (
	ErrStorageUnavailable = errors.New("domain: storage unavailable")
	ErrValidation         = errors.New("domain: validation failed")
	ErrNotFound           = errors.New("domain: not found")
)
