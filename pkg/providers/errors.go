package providers

import "errors"

// ErrInvalidToken means the model backend rejected the user's API key. It is
// deliberately distinct from a missing registration and from transient
// backend failures so callers can word replies per failure class.
var ErrInvalidToken = errors.New("invalid API token")
