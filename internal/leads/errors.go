package leads

import "errors"

var (
	// ErrMissingLeadID is returned when the event has no lead identifier
	ErrMissingLeadID = errors.New("lead id is required")

	// ErrUnsupportedEntity is returned for after-save events of other entity types
	ErrUnsupportedEntity = errors.New("entity is not a lead")
)
