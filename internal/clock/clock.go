package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock supplies the current instant. Business dates are derived from it in UTC.
type Clock interface {
	Now() time.Time
}

type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

func NewSystem() Clock { return System{} }

var Module = fx.Module("clock",
	fx.Provide(NewSystem),
)

// Today truncates the clock reading to a UTC calendar date.
func Today(c Clock) time.Time {
	return DateOf(c.Now())
}

func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
