package domain

// Session is the trading session a timestamp falls into, in exchange-local
// time. Extended-hours sessions flag outputs as lower reliability; they never
// suppress computation.
type Session string

const (
	SessionPremarket  Session = "PREMARKET"
	SessionRegular    Session = "REGULAR"
	SessionAfterhours Session = "AFTERHOURS"
	SessionClosed     Session = "CLOSED"
)

// Extended reports whether the session is outside regular trading hours but
// still tradeable.
func (s Session) Extended() bool {
	return s == SessionPremarket || s == SessionAfterhours
}
