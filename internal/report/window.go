// Package report derives trend and compliance aggregates from daily snapshots
// and stored incidents.
package report

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/fieldops-platform/apps/api/internal/incident"
)

type Scope string

const (
	ScopeMonthly    Scope = "monthly"
	ScopeQuarterly  Scope = "quarterly"
	ScopeSemiannual Scope = "semiannual"
	ScopeAnnual     Scope = "annual"
)

func ParseScope(raw string) (Scope, error) {
	switch s := Scope(strings.ToLower(strings.TrimSpace(raw))); s {
	case ScopeMonthly, ScopeQuarterly, ScopeSemiannual, ScopeAnnual:
		return s, nil
	case "":
		return ScopeMonthly, nil
	default:
		return "", fmt.Errorf("unknown scope %q", raw)
	}
}

// Window is a half-open [Start, End) range of UTC days.
type Window struct {
	Start time.Time
	End   time.Time
}

// WindowFor anchors the scope to now's month, quarter or half inside year.
func WindowFor(scope Scope, year int, now time.Time) (Window, error) {
	if year < 1900 || year > 9999 {
		return Window{}, fmt.Errorf("year %d out of range", year)
	}
	month := int(now.UTC().Month())
	var first, months int
	switch scope {
	case ScopeMonthly:
		first, months = month, 1
	case ScopeQuarterly:
		first, months = (month-1)/3*3+1, 3
	case ScopeSemiannual:
		first, months = (month-1)/6*6+1, 6
	case ScopeAnnual:
		first, months = 1, 12
	default:
		return Window{}, fmt.Errorf("unknown scope %q", scope)
	}
	start := time.Date(year, time.Month(first), 1, 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: start.AddDate(0, months, 0)}, nil
}

// MonthWindow is the calendar month containing now.
func MonthWindow(now time.Time) Window {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Window{Start: start, End: start.AddDate(0, 1, 0)}
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// FromDay and ToDay render the bounds as YYYY-MM-DD.
func (w Window) FromDay() string { return w.Start.Format(incident.DateLayout) }
func (w Window) ToDay() string   { return w.End.Format(incident.DateLayout) }

// ElapsedDays counts days from Start up to the earlier of End and now,
// counting a started day as whole.
func (w Window) ElapsedDays(now time.Time) int {
	stop := w.End
	if now.Before(stop) {
		stop = now
	}
	if !stop.After(w.Start) {
		return 0
	}
	return int(math.Ceil(stop.Sub(w.Start).Hours() / 24))
}
