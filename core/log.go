package core

import "github.com/rs/zerolog"

type Log interface {
	Info() *zerolog.Event
	Debug() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
}

// WithPayIn returns the event annotated with the fields every settlement log line carries.
func WithPayIn(e *zerolog.Event, payIn *PayIn) *zerolog.Event {
	if payIn == nil {
		return e
	}
	return e.Str("payInId", payIn.Id.String()).
		Str("payInType", payIn.PayInType.String()).
		Str("payInState", payIn.PayInState.String())
}
