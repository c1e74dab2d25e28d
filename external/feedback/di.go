package feedback

import (
	"github.com/foxseedlab/mcumixer/internal/media"
	"github.com/foxseedlab/mcumixer/internal/mixer"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (mixer.FeedbackSinkFactory, error) {
		recorder := do.MustInvoke[Recorder](i)
		return func() (media.FeedbackSink, error) {
			return NewDiscardSink(recorder), nil
		}, nil
	})
}
