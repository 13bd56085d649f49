package router

import (
	"errors"

	"github.com/chatrelay/chatrelay/pkg/providers"
)

// ErrUnregistered means the sender has no stored credential yet. It is a
// different failure class from providers.ErrInvalidToken: the reply asks the
// user to register, not to re-register.
var ErrUnregistered = errors.New("user not registered")

// ErrInvalidToken re-exports the provider sentinel so callers can branch on
// the full taxonomy from one package.
var ErrInvalidToken = providers.ErrInvalidToken
