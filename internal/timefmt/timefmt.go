// Package timefmt renders entry timestamps for display.
package timefmt

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/dustin/go-humanize"
)

type Formatter struct {
	loc    *time.Location
	layout string
	now    func() time.Time
}

// New returns a Formatter that shows absolute times in the named zone using
// layout. An empty zone means UTC.
func New(zone, layout string) (*Formatter, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone %q: %w", zone, err)
	}
	return &Formatter{loc: loc, layout: layout, now: time.Now}, nil
}

// WithClock returns a copy of f that measures relative times against now.
func (f *Formatter) WithClock(now func() time.Time) *Formatter {
	c := *f
	c.now = now
	return &c
}

// Relative describes t relative to the current time, e.g. "3 minutes ago".
func (f *Formatter) Relative(t time.Time) string {
	return humanize.RelTime(t, f.now(), "ago", "from now")
}

// Absolute formats t in the configured zone and layout.
func (f *Formatter) Absolute(t time.Time) string {
	return t.In(f.loc).Format(f.layout)
}
