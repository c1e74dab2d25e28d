package srtp

import (
	"fmt"

	"github.com/foxseedlab/mcumixer/internal/media"
	"github.com/foxseedlab/mcumixer/internal/mixer"
	"github.com/pion/rtp"
	pionsrtp "github.com/pion/srtp/v3"
)

const (
	masterKeyLen  = 16
	masterSaltLen = 14

	replayWindow = 64
)

const profile = pionsrtp.ProtectionProfileAes128CmHmacSha1_80

// Unprotector decrypts and authenticates SRTP packets of one publisher.
// A pion context keeps per-SSRC rollover state, so it is not shared.
type Unprotector struct {
	ctx *pionsrtp.Context
}

func NewUnprotector(keyMaterial []byte) (*Unprotector, error) {
	key, salt, err := splitKeyMaterial(keyMaterial)
	if err != nil {
		return nil, err
	}
	ctx, err := pionsrtp.CreateContext(key, salt, profile, pionsrtp.SRTPReplayProtection(replayWindow))
	if err != nil {
		return nil, fmt.Errorf("create srtp context: %w", err)
	}
	return &Unprotector{ctx: ctx}, nil
}

func (u *Unprotector) UnprotectRTP(dst, buf []byte) ([]byte, error) {
	out, err := u.ctx.DecryptRTP(dst, buf, &rtp.Header{})
	if err != nil {
		return nil, fmt.Errorf("unprotect rtp: %w", err)
	}
	return out, nil
}

// NewFactory returns nil when no key material is configured, which tells the
// mixer that publishers send plain RTP.
func NewFactory(keyMaterial []byte) (mixer.UnprotectorFactory, error) {
	if len(keyMaterial) == 0 {
		return nil, nil
	}
	if _, _, err := splitKeyMaterial(keyMaterial); err != nil {
		return nil, err
	}
	material := append([]byte(nil), keyMaterial...)
	return func() (media.Unprotector, error) {
		return NewUnprotector(material)
	}, nil
}

func splitKeyMaterial(keyMaterial []byte) (key, salt []byte, err error) {
	if len(keyMaterial) != masterKeyLen+masterSaltLen {
		return nil, nil, fmt.Errorf("srtp key material must be %d bytes, got %d", masterKeyLen+masterSaltLen, len(keyMaterial))
	}
	return keyMaterial[:masterKeyLen], keyMaterial[masterKeyLen:], nil
}
