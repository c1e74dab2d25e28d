package srtp

import (
	"log/slog"

	"github.com/foxseedlab/mcumixer/internal/config"
	"github.com/foxseedlab/mcumixer/internal/mixer"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (mixer.UnprotectorFactory, error) {
		cfg := do.MustInvoke[*config.Config](i)
		material, err := cfg.SRTPKeyMaterial()
		if err != nil {
			return nil, err
		}
		if material == nil {
			slog.Info("srtp disabled: publishers send plain rtp")
		}
		return NewFactory(material)
	})
}
