package models

import "errors"

// Contract-level AI errors. Defined alongside AIProvider so provider
// implementations can return them without importing the orchestration
// packages that consume them.
var (
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	ErrInvalidResponse     = errors.New("ai provider returned invalid response")
)
