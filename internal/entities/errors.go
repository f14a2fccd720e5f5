package entities

import "errors"

var (
	ErrMissingKey         = errors.New("missing key")
	ErrOriginalNotFound   = errors.New("original not found")
	ErrInvalidImage       = errors.New("invalid image")
	ErrRegistryDisabled   = errors.New("variant registry disabled")
	ErrUploadsUnavailable = errors.New("uploads unavailable")
)
