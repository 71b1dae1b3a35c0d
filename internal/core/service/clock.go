package service

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so tests are deterministic.
type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator abstracts record ID generation.
type IDGenerator interface {
	New() string
}

type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }

// now returns the clock time in UTC at the precision the store keeps.
func now(c Clock) time.Time {
	return c.Now().UTC().Truncate(time.Microsecond)
}
