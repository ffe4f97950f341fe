package domain

import "time"

// LevelKind distinguishes support from resistance.
type LevelKind string

const (
	LevelSupport    LevelKind = "SUPPORT"
	LevelResistance LevelKind = "RESISTANCE"
)

// SupportResistanceLevel is a persistently defended price level. Strength
// grows each time price approaches within the tracker's tolerance band and
// reverses without trading through; the level is removed once price closes
// beyond it by more than the tolerance.
type SupportResistanceLevel struct {
	Price          float64
	Kind           LevelKind
	Strength       float64
	TouchCount     int
	LastDefendedAt time.Time
}
