package interfaces

import "errors"

var (
	// ErrInvalidAddress is returned when an address is not a well-formed
	// 20-byte hex string. Fail-fast: raised at construction or request
	// validation, never deferred to first use.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidChainID is returned when a chain id is not a positive integer.
	ErrInvalidChainID = errors.New("invalid chain id")

	// ErrUnsupportedArgumentType is returned when a constructor argument has a
	// runtime type the encoder does not support. There is no silent coercion.
	ErrUnsupportedArgumentType = errors.New("unsupported constructor argument type")

	// ErrConditionsNotMet is the distinguished gate denial: the gate correctly
	// refused to sign because a required condition did not verify. Distinct
	// from infrastructure faults.
	ErrConditionsNotMet = errors.New("signing conditions not met")

	// ErrSigningFailed wraps errors from the custody network's sign
	// capability. Terminal for the invocation; never retried.
	ErrSigningFailed = errors.New("signing failed")

	// ErrContentNotFound is returned when requested content cannot be found in
	// the storage backend.
	ErrContentNotFound = errors.New("content not found")

	// ErrBackendUnavailable is returned when a storage backend is not
	// accessible due to network issues, authentication failures, or outages.
	ErrBackendUnavailable = errors.New("storage backend unavailable")

	// ErrInvalidLocationURI is returned when a storage location URI is
	// malformed or unsupported.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)
