package mixer

import "github.com/foxseedlab/mcumixer/internal/media"

type Observer interface {
	PublishersChanged(n int)
	SubscribersChanged(n int)
	InboundDelivered(t media.Type, bytes int)
	FannedOut(t media.Type, streamID uint32, subscribers, bytes int)
}

type nopObserver struct{}

func (nopObserver) PublishersChanged(int)                  {}
func (nopObserver) SubscribersChanged(int)                 {}
func (nopObserver) InboundDelivered(media.Type, int)       {}
func (nopObserver) FannedOut(media.Type, uint32, int, int) {}
