package tuning

import "errors"

var (
	// ErrInvalidKey indicates the key is empty or contains invalid characters.
	ErrInvalidKey = errors.New("tuning: invalid key")
	// ErrAlreadyRegistered indicates the same key is registered more than once.
	ErrAlreadyRegistered = errors.New("tuning: already registered")
	// ErrInvalidValue indicates a runtime Set value fails validation.
	ErrInvalidValue = errors.New("tuning: invalid value")
	// ErrInvalidConfig indicates a registration-time configuration error.
	ErrInvalidConfig = errors.New("tuning: invalid config")
	// ErrNotFound indicates the key is not registered.
	ErrNotFound = errors.New("tuning: key not found")
)
