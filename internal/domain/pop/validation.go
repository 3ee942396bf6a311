package pop

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks a decoded submission before it reaches the ingest path:
// a non-empty API key, at least one event, and a parsed end time on every
// event. Numeric fields are unsigned on the wire, so negative counts are
// rejected during decoding.
func (s *Submission) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("submission: %w", err)
	}
	for i, event := range s.Events {
		if event.EndTime.IsZero() {
			return fmt.Errorf("submission: event %d: end_time is required", i)
		}
	}
	return nil
}
