package conference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/foxseedlab/mcumixer/internal/config"
	"github.com/foxseedlab/mcumixer/internal/discord"
	"github.com/foxseedlab/mcumixer/internal/repository"
	"github.com/foxseedlab/mcumixer/internal/transcriber"
	"github.com/foxseedlab/mcumixer/internal/webhook"
)

// transcriberPeerID is the subscriber slot the transcription sink occupies.
const transcriberPeerID = "transcriber"

type Manager struct {
	cfg         *config.Config
	repo        repository.Repository
	discord     discord.Client
	transcriber transcriber.Transcriber
	webhook     webhook.Sender
	newCore     CoreFactory
	newDecoder  DecoderFactory
	now         func() time.Time

	// lifecycle serializes starting, joining, leaving and stopping. Packet
	// delivery never takes it.
	lifecycle sync.Mutex

	mu          sync.Mutex
	botUserID   string
	conferences map[string]*conference
	stopReasons map[string]string

	finalizing sync.WaitGroup
}

func NewManager(cfg *config.Config, repo repository.Repository, dc discord.Client, stt transcriber.Transcriber, wh webhook.Sender, newCore CoreFactory, newDecoder DecoderFactory) *Manager {
	return &Manager{
		cfg:         cfg,
		repo:        repo,
		discord:     dc,
		transcriber: stt,
		webhook:     wh,
		newCore:     newCore,
		newDecoder:  newDecoder,
		now:         time.Now,
		conferences: make(map[string]*conference),
		stopReasons: make(map[string]string),
	}
}

func (m *Manager) SetBotUserID(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.botUserID = userID
}

func (m *Manager) isBotSelf(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.botUserID != "" && m.botUserID == userID
}

func conferenceKey(guildID, channelID string) string {
	return guildID + ":" + channelID
}

func (m *Manager) lookup(guildID, channelID string) *conference {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conferences[conferenceKey(guildID, channelID)]
}

func (m *Manager) HandleVoiceStateUpdate(event discord.VoiceStateEvent) {
	if event.GuildID != m.cfg.DiscordGuildID {
		slog.Debug("ignoring voice event for different guild", "event_guild_id", event.GuildID, "configured_guild_id", m.cfg.DiscordGuildID)
		return
	}
	target := m.cfg.DiscordVCID
	joined := event.AfterChannelID == target && event.BeforeChannelID != target
	left := event.BeforeChannelID == target && event.AfterChannelID != target
	if !joined && !left {
		return
	}
	slog.Info("voice state update received", "guild_id", event.GuildID, "user_id", event.UserID, "joined", joined)

	if m.isBotSelf(event.UserID) {
		if left {
			m.lifecycle.Lock()
			err := m.stopConference(event.GuildID, target, stopReasonBotRemoved)
			m.lifecycle.Unlock()
			if err != nil {
				slog.Error("failed to stop conference", "error", err)
			}
		}
		return
	}
	if event.UserIsBot {
		return
	}
	if joined {
		if err := m.join(event.GuildID, target, event.UserID); err != nil {
			slog.Error("failed to join conference", "error", err, "user_id", event.UserID)
		}
		return
	}
	if err := m.leave(event.GuildID, target, event.UserID); err != nil {
		slog.Error("failed to leave conference", "error", err, "user_id", event.UserID)
	}
}

func (m *Manager) join(guildID, channelID, userID string) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	conf := m.lookup(guildID, channelID)
	if conf == nil {
		var err error
		conf, err = m.startConferenceLocked(guildID, channelID)
		if err != nil {
			return err
		}
	}
	conf.mu.Lock()
	conf.members[userID] = struct{}{}
	delete(conf.departed, userID)
	conf.mu.Unlock()
	return m.addPublisher(conf, userID)
}

func (m *Manager) leave(guildID, channelID, userID string) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	conf := m.lookup(guildID, channelID)
	if conf == nil {
		return nil
	}
	m.removePublisher(conf, userID)
	conf.mu.Lock()
	delete(conf.members, userID)
	conf.departed[userID] = struct{}{}
	remaining := len(conf.members)
	conf.mu.Unlock()

	slog.Info("participant left conference", "conference_id", conf.id(), "user_id", userID, "remaining", remaining)
	if remaining > 0 {
		return nil
	}
	return m.stopConference(guildID, channelID, stopReasonParticipantsLeft)
}

func (m *Manager) startConferenceLocked(guildID, channelID string) (*conference, error) {
	slog.Info("start conference requested", "guild_id", guildID, "channel_id", channelID)
	ctx := context.Background()

	orphan, err := m.repo.GetRunningConferenceByChannel(ctx, guildID, channelID)
	if err != nil {
		return nil, fmt.Errorf("query running conference: %w", err)
	}
	if orphan != nil {
		slog.Warn("found orphan running conference in repository; closing and continuing", "conference_id", orphan.ID)
		if err := m.repo.CompleteConference(ctx, repository.CompleteConferenceInput{
			ConferenceID: orphan.ID,
			EndedAt:      m.now(),
			StopReason:   stopReasonServerClosed,
		}); err != nil {
			return nil, fmt.Errorf("complete orphan conference: %w", err)
		}
	}

	voice, err := m.discord.JoinVoiceChannel(guildID, channelID)
	if err != nil {
		return nil, fmt.Errorf("join voice channel: %w", err)
	}
	record, err := m.repo.CreateConference(ctx, repository.CreateConferenceInput{
		GuildID:   guildID,
		ChannelID: channelID,
		StartedAt: m.now(),
	})
	if err != nil {
		_ = voice.Disconnect()
		return nil, fmt.Errorf("create conference record: %w", err)
	}
	core, err := m.newCore()
	if err != nil {
		_ = voice.Disconnect()
		m.completeRecord(ctx, record, stopReasonServerClosed, 0, 0)
		return nil, fmt.Errorf("create mixer: %w", err)
	}

	streamCtx, cancel := context.WithCancel(context.Background())
	conf := newConference(record, guildID, channelID, voice, core, cancel)
	lines := []string{messageConferenceStarted, messageConferenceStartedHint}
	if m.cfg.TranscribeEnabled {
		if err := m.startTranscription(streamCtx, conf); err != nil {
			slog.Error("failed to start transcription; mixing continues without it", "error", err, "conference_id", record.ID)
			lines = append(lines, messageTranscriptionUnavailable)
		} else {
			conf.transcribing = true
			lines = append(lines, messageTranscriptionStarted)
		}
	}

	m.mu.Lock()
	m.conferences[conferenceKey(guildID, channelID)] = conf
	m.mu.Unlock()
	slog.Info("conference activated", "conference_id", record.ID, "guild_id", guildID, "channel_id", channelID)

	m.addExistingMembers(conf)
	if err := m.discord.SendChannelMessage(channelID, strings.Join(lines, "\n")); err != nil {
		slog.Warn("failed to post start message", "error", err, "conference_id", record.ID)
	}
	go voice.ReceiveRTP(func(userID string, packet []byte) {
		m.deliver(conf, userID, packet)
	})
	return conf, nil
}

// addExistingMembers picks up people already sitting in the channel when
// the conference starts.
func (m *Manager) addExistingMembers(conf *conference) {
	members, err := m.discord.ChannelMembers(conf.guildID, conf.channelID)
	if err != nil {
		slog.Warn("failed to list voice channel members", "error", err, "conference_id", conf.id())
		return
	}
	for _, member := range members {
		if member.IsBot || m.isBotSelf(member.UserID) {
			continue
		}
		conf.mu.Lock()
		conf.members[member.UserID] = struct{}{}
		conf.mu.Unlock()
		if err := m.addPublisher(conf, member.UserID); err != nil {
			slog.Error("failed to add existing member as publisher", "error", err, "user_id", member.UserID)
		}
	}
}

func (m *Manager) startTranscription(ctx context.Context, conf *conference) error {
	dec, err := m.newDecoder()
	if err != nil {
		return fmt.Errorf("create audio decoder: %w", err)
	}
	receiver := &resultReceiver{manager: m, conferenceID: conf.id(), channelID: conf.channelID}
	writer, err := m.transcriber.StartStreaming(ctx, conf.id(), m.cfg.DefaultTranscribeLanguage, receiver)
	if err != nil {
		return fmt.Errorf("start transcriber streaming: %w", err)
	}
	sink := newTranscriptionSink(conf.id(), dec, writer)
	if err := conf.core.AddSubscriber(sink, transcriberPeerID); err != nil {
		if cerr := sink.Close(); cerr != nil {
			slog.Warn("failed to close refused transcription sink", "error", cerr, "conference_id", conf.id())
		}
		return fmt.Errorf("attach transcription subscriber: %w", err)
	}
	slog.Info("transcription subscriber attached", "conference_id", conf.id())
	return nil
}

func (m *Manager) addPublisher(conf *conference, userID string) error {
	conf.mu.Lock()
	if conf.stopped {
		conf.mu.Unlock()
		return nil
	}
	if _, ok := conf.publishers[userID]; ok {
		conf.mu.Unlock()
		return nil
	}
	p := &participant{userID: userID}
	if err := conf.core.AddPublisher(p); err != nil {
		conf.mu.Unlock()
		return fmt.Errorf("add publisher %s: %w", userID, err)
	}
	conf.publishers[userID] = p
	if !slices.Contains(conf.seen, userID) {
		conf.seen = append(conf.seen, userID)
	}
	conf.peak = max(conf.peak, len(conf.publishers))
	slot, _ := conf.core.GetSlot(p)
	conf.mu.Unlock()

	slog.Info("publisher joined", "conference_id", conf.id(), "user_id", userID, "slot", slot)
	m.recordMembership(conf, userID, repository.MembershipJoined, slot)
	return nil
}

func (m *Manager) removePublisher(conf *conference, userID string) {
	conf.mu.Lock()
	p, ok := conf.publishers[userID]
	if !ok {
		conf.mu.Unlock()
		return
	}
	slot, _ := conf.core.GetSlot(p)
	conf.core.RemovePublisher(p)
	delete(conf.publishers, userID)
	conf.mu.Unlock()

	slog.Info("publisher left", "conference_id", conf.id(), "user_id", userID, "slot", slot)
	m.recordMembership(conf, userID, repository.MembershipLeft, slot)
}

func (m *Manager) recordMembership(conf *conference, userID string, kind repository.MembershipEventKind, slot int) {
	if err := m.repo.InsertMembershipEvent(context.Background(), repository.MembershipEvent{
		ConferenceID: conf.id(),
		UserID:       userID,
		Kind:         kind,
		Slot:         slot,
		OccurredAt:   m.now(),
	}); err != nil {
		slog.Error("failed to record membership event", "error", err, "conference_id", conf.id(), "user_id", userID, "kind", kind)
	}
}

// deliver feeds one voice packet into the mix. Speakers the voice events
// have not announced yet become publishers on their first packet, unless
// they already left.
func (m *Manager) deliver(conf *conference, userID string, packet []byte) {
	if m.isBotSelf(userID) {
		return
	}
	n := conf.packets.Add(1)
	if n == 1 || n%500 == 0 {
		slog.Debug("received voice packet", "conference_id", conf.id(), "user_id", userID, "packet_bytes", len(packet), "total_packets", n)
	}
	p, ok := conf.publisher(userID)
	if !ok {
		conf.mu.Lock()
		_, departed := conf.departed[userID]
		conf.mu.Unlock()
		if departed {
			return
		}
		if err := m.addPublisher(conf, userID); err != nil {
			slog.Debug("dropping packet from unknown speaker", "error", err, "user_id", userID)
			return
		}
		if p, ok = conf.publisher(userID); !ok {
			return
		}
	}
	conf.core.DeliverAudioData(packet, p)
}

// stopConference must be called with lifecycle held.
func (m *Manager) stopConference(guildID, channelID, reason string) error {
	key := conferenceKey(guildID, channelID)
	m.mu.Lock()
	conf, ok := m.conferences[key]
	if ok {
		delete(m.conferences, key)
		if conf.transcribing {
			m.stopReasons[conf.id()] = reason
		}
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	slog.Info("stopping conference", "conference_id", conf.id(), "channel_id", channelID, "reason", reason)
	conf.mu.Lock()
	conf.stopped = true
	conf.mu.Unlock()
	// The transcription sink drains into the stream on close, so the stream
	// context is cancelled only afterwards.
	err := conf.core.Close()
	conf.cancel()
	if derr := conf.voice.Disconnect(); derr != nil {
		err = errors.Join(err, fmt.Errorf("disconnect voice: %w", derr))
	}

	m.finalizing.Add(1)
	go func() {
		defer m.finalizing.Done()
		m.finalizeConference(conf, reason)
	}()
	return err
}

func (m *Manager) finalizeConference(conf *conference, reason string) {
	ctx := context.Background()
	endedAt := m.now()
	id := conf.id()
	defer m.forgetStopReason(id)

	segments, err := m.repo.ListSegmentsByConferenceID(ctx, id)
	if err != nil {
		slog.Error("failed to list transcript segments", "error", err, "conference_id", id)
	}
	events, err := m.repo.ListMembershipEvents(ctx, id)
	if err != nil {
		slog.Error("failed to list membership events", "error", err, "conference_id", id)
	}
	meta, err := m.discord.ResolveConferenceMetadata(ctx, conf.guildID, conf.channelID, conf.seenUserIDs())
	if err != nil {
		slog.Warn("failed to resolve conference metadata; using ids", "error", err, "conference_id", id)
	}
	loc, err := time.LoadLocation(m.cfg.TranscriptTimezone)
	if err != nil {
		loc = time.UTC
	}
	startedAt := conf.record.StartedAt

	body := buildConferenceText(meta, startedAt, endedAt, m.cfg.TranscriptTimezone, loc, events, segments)
	if err := m.discord.SendChannelMessageWithFile(discord.FileMessage{
		ChannelID: conf.channelID,
		Content:   strings.Join([]string{messageConferenceStopped, "-# " + stopReasonDetail(reason), messageAttachmentTitle}, "\n"),
		Filename:  fmt.Sprintf("conference-%s.txt", id),
		FileBody:  body,
	}); err != nil {
		slog.Error("failed to post conference record", "error", err, "conference_id", id)
	}
	m.completeRecord(ctx, conf.record, reason, conf.peakPublishers(), len(segments))

	payload := buildConferenceSummaryPayload(id, meta, startedAt, endedAt, m.cfg.TranscriptTimezone, loc, reason, conf.peakPublishers(), events, segments)
	if err := m.webhook.SendConferenceSummary(ctx, payload); err != nil {
		slog.Error("failed to send conference summary webhook", "error", err, "conference_id", id)
	}
	slog.Info("conference finalized", "conference_id", id, "segments", len(segments), "membership_events", len(events))
}

func (m *Manager) completeRecord(ctx context.Context, record *repository.Conference, reason string, peak, segments int) {
	endedAt := m.now()
	if err := m.repo.CompleteConference(ctx, repository.CompleteConferenceInput{
		ConferenceID:    record.ID,
		EndedAt:         endedAt,
		StopReason:      reason,
		DurationSeconds: max(int64(endedAt.Sub(record.StartedAt).Seconds()), 0),
		PeakPublishers:  peak,
		SegmentCount:    segments,
	}); err != nil {
		slog.Error("failed to complete conference", "error", err, "conference_id", record.ID)
	}
}

// Shutdown stops every running conference and waits for their records to
// be finalized or for ctx to end.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.lifecycle.Lock()
	m.mu.Lock()
	confs := make([]*conference, 0, len(m.conferences))
	for _, conf := range m.conferences {
		confs = append(confs, conf)
	}
	m.mu.Unlock()
	var errs []error
	for _, conf := range confs {
		errs = append(errs, m.stopConference(conf.guildID, conf.channelID, stopReasonServerClosed))
	}
	m.lifecycle.Unlock()

	done := make(chan struct{})
	go func() {
		m.finalizing.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for conference finalization: %w", ctx.Err()))
	}
	return errors.Join(errs...)
}

func (m *Manager) isConferenceRunning(guildID, channelID string) bool {
	return m.lookup(guildID, channelID) != nil
}

func (m *Manager) handleTranscriptionResult(conferenceID, channelID string, segmentIndex int, text string, isFinal bool) {
	if !isFinal || strings.TrimSpace(text) == "" {
		return
	}
	ctx := context.Background()
	if err := m.repo.InsertSegment(ctx, repository.InsertSegmentInput{
		ConferenceID: conferenceID,
		Content:      text,
		SegmentIndex: segmentIndex,
		SpokenAt:     m.now(),
	}); err != nil {
		slog.Error("failed to insert segment", "error", err, "conference_id", conferenceID)
		return
	}
	if err := m.discord.SendChannelMessage(channelID, text); err != nil {
		slog.Error("failed to post transcript message", "error", err, "conference_id", conferenceID)
	}
}

type resultReceiver struct {
	manager      *Manager
	conferenceID string
	channelID    string
	mu           sync.Mutex
	nextIndex    int
}

func (r *resultReceiver) OnResult(_ int, text string, isFinal bool) {
	if !isFinal {
		return
	}
	r.mu.Lock()
	idx := r.nextIndex
	r.nextIndex++
	r.mu.Unlock()
	r.manager.handleTranscriptionResult(r.conferenceID, r.channelID, idx, text, true)
}

func (r *resultReceiver) OnError(err error) {
	reason := r.manager.takeStopReason(r.conferenceID)
	if errors.Is(err, context.Canceled) || strings.Contains(err.Error(), "operation was cancelled") {
		slog.Info("transcriber stream canceled", "error", err, "conference_id", r.conferenceID, "reason", reason)
		return
	}
	slog.Error("transcriber stream error", "error", err, "conference_id", r.conferenceID, "reason", reason)
}

func (m *Manager) forgetStopReason(conferenceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stopReasons, conferenceID)
}

func (m *Manager) takeStopReason(conferenceID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	reason := m.stopReasons[conferenceID]
	delete(m.stopReasons, conferenceID)
	if reason == "" {
		return "unknown (likely remote stream close or network interruption)"
	}
	return reason
}
