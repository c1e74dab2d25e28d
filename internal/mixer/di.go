package mixer

import (
	"github.com/foxseedlab/mcumixer/internal/bufpool"
	"github.com/foxseedlab/mcumixer/internal/engine"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (Factory, error) {
		engines := do.MustInvoke[engine.Factory](i)
		newFeedback := do.MustInvoke[FeedbackSinkFactory](i)
		newUnprotector := do.MustInvoke[UnprotectorFactory](i)
		obs := do.MustInvoke[Observer](i)
		return func() (*Mixer, error) {
			return New(Dependencies{
				Engines:         engines,
				NewFeedbackSink: newFeedback,
				NewUnprotector:  newUnprotector,
				Observer:        obs,
				BufferSize:      bufpool.DefaultBufferSize,
			})
		}, nil
	})
}
