// Package session maps timestamps to US equity trading sessions in
// exchange-local time.
package session

import (
	"time"

	"github.com/InvestmentMDideas/Level-2-data-analyzer/internal/domain"
)

// exchangeTZ is the exchange-local zone for session boundaries.
var exchangeTZ = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// Session boundaries, minutes since exchange-local midnight.
const (
	premarketOpen = 4 * 60
	regularOpen   = 9*60 + 30
	regularClose  = 16 * 60
	afterhoursEnd = 20 * 60
)

// Classify returns the trading session the timestamp falls into. Weekends are
// always CLOSED. The result is informational: extended-hours sessions dampen
// signal confidence but never suppress computation.
func Classify(t time.Time) domain.Session {
	local := t.In(exchangeTZ)

	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return domain.SessionClosed
	}

	minute := local.Hour()*60 + local.Minute()
	switch {
	case minute < premarketOpen:
		return domain.SessionClosed
	case minute < regularOpen:
		return domain.SessionPremarket
	case minute < regularClose:
		return domain.SessionRegular
	case minute < afterhoursEnd:
		return domain.SessionAfterhours
	default:
		return domain.SessionClosed
	}
}
