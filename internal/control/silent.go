package control

import (
	"context"

	"pioreactor.com/dosing/internal/pump"
)

func init() {
	Register("silent", func(base *Base, kwargs map[string]string) (Algorithm, error) {
		return &Silent{Base: base}, nil
	})
}

// Silent never actuates (spec §4.6 "Silent. Always NoEvent.").
type Silent struct {
	*Base
}

func (s *Silent) Execute(ctx context.Context, counter int) (pump.Event, error) {
	return pump.NoEvent{ReasonText: "Silent"}, nil
}
