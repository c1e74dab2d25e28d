package engine

import (
	"github.com/foxseedlab/mcumixer/internal/config"
	"github.com/foxseedlab/mcumixer/internal/engine"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (engine.Factory, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return NewFactory(Options{
			AudioSSRC: cfg.AudioSSRC,
			VideoSSRC: cfg.VideoSSRC,
			FocusHold: cfg.VideoFocusHold(),
		}), nil
	})
}
