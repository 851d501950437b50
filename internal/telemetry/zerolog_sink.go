package telemetry

import "github.com/rs/zerolog"

// ZerologSink forwards events to a zerolog.Logger, favoring contextual
// fields over formatted strings.
type ZerologSink struct {
	Logger zerolog.Logger
}

func NewZerologSink(logger zerolog.Logger) *ZerologSink {
	return &ZerologSink{Logger: logger}
}

func (s *ZerologSink) Report(evt Event) {
	e := s.Logger.Warn().Str("event", evt.Name)
	if evt.Container != "" {
		e = e.Str("container", evt.Container)
	}
	if evt.ObjectID != "" {
		e = e.Str("object", evt.ObjectID)
	}
	if evt.ClientID != "" {
		e = e.Str("client", evt.ClientID)
	}
	for k, v := range evt.Fields {
		e = e.Interface(k, v)
	}
	if evt.Err != nil {
		e = e.Err(evt.Err)
	}
	e.Msg("telemetry")
}
