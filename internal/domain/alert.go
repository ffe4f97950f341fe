package domain

import "time"

// AlertKind classifies a concealed-liquidity detection.
type AlertKind string

const (
	AlertHiddenBuyer  AlertKind = "HIDDEN_BUYER"
	AlertHiddenSeller AlertKind = "HIDDEN_SELLER"
	AlertIceberg      AlertKind = "ICEBERG"
)

// AlertStrength grades how convincing the detection evidence is.
type AlertStrength string

const (
	StrengthLow    AlertStrength = "LOW"
	StrengthMedium AlertStrength = "MEDIUM"
	StrengthHigh   AlertStrength = "HIGH"
)

// HiddenOrderAlert is an active concealed-liquidity detection. An alert stays
// in the active set only while reinforcing evidence keeps arriving within the
// detector's lookback window; LastEvidence tracks the most recent observation
// supporting it.
type HiddenOrderAlert struct {
	ID           string
	Kind         AlertKind
	Symbol       string
	Price        float64
	Side         Side
	Strength     AlertStrength
	Evidence     []string
	RefreshCount int
	DetectedAt   time.Time
	LastEvidence time.Time
}
