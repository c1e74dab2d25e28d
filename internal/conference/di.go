package conference

import (
	"github.com/foxseedlab/mcumixer/internal/config"
	"github.com/foxseedlab/mcumixer/internal/discord"
	"github.com/foxseedlab/mcumixer/internal/engine"
	"github.com/foxseedlab/mcumixer/internal/mixer"
	"github.com/foxseedlab/mcumixer/internal/repository"
	"github.com/foxseedlab/mcumixer/internal/transcriber"
	"github.com/foxseedlab/mcumixer/internal/webhook"
	"github.com/samber/do/v2"
)

func RegisterDI(injector do.Injector) {
	do.Provide(injector, func(i do.Injector) (*Manager, error) {
		cfg := do.MustInvoke[*config.Config](i)
		repo := do.MustInvoke[repository.Repository](i)
		dc := do.MustInvoke[discord.Client](i)
		stt := do.MustInvoke[transcriber.Transcriber](i)
		wh := do.MustInvoke[webhook.Sender](i)
		newMixer := do.MustInvoke[mixer.Factory](i)
		engines := do.MustInvoke[engine.Factory](i)
		newCore := func() (Core, error) {
			return newMixer()
		}
		return NewManager(cfg, repo, dc, stt, wh, newCore, engines.NewAudioDecoder), nil
	})
}
