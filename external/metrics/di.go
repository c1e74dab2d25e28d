package metrics

import (
	"github.com/foxseedlab/mcumixer/external/feedback"
	"github.com/foxseedlab/mcumixer/internal/mixer"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Collector, error) {
		return NewCollector(), nil
	})
	do.Provide(injector, func(i do.Injector) (mixer.Observer, error) {
		return do.MustInvoke[*Collector](i), nil
	})
	do.Provide(injector, func(i do.Injector) (feedback.Recorder, error) {
		return do.MustInvoke[*Collector](i), nil
	})
}
