package provider

import "errors"

var (
	// ErrModelPrefix is returned when a remote model lacks a known routing prefix.
	ErrModelPrefix = errors.New("provider: remote model must carry a provider prefix")

	// ErrMissingCredential is returned when a remote target has no usable API key.
	ErrMissingCredential = errors.New("provider: remote target requires a credential")

	// ErrUnknownKind is returned for a kind other than local or remote.
	ErrUnknownKind = errors.New("provider: unknown target kind")
)
