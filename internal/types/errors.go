package types

import "errors"

// Error taxonomy shared by the services. Callers wrap these with
// fmt.Errorf("%w: ...") and match them with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("not found")
	ErrConflict            = errors.New("conflict")
	ErrProviderUnavailable = errors.New("holdings provider unavailable")
	ErrVenueUnavailable    = errors.New("execution venue unavailable")
	ErrStorage             = errors.New("storage failure")
)
