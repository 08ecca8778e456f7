package ids

import (
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// New returns a time-ordered identifier used for token ids and lineages.
func New() string {
	return ksuid.New().String()
}

func NewUUID() uuid.UUID {
	return uuid.New()
}

func Valid(id string) bool {
	_, err := ksuid.Parse(id)
	return err == nil
}

// ValidUUID reports whether id parses as a row identifier.
func ValidUUID(id string) bool {
	return uuid.Validate(id) == nil
}
