package transcriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"cloud.google.com/go/auth/credentials"
	speech "cloud.google.com/go/speech/apiv2"
	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"github.com/foxseedlab/mcumixer/internal/transcriber"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	speechAPIEndpointPort = 443
	audioSampleRateHertz  = 48000
	audioChannelCount     = 2
	cloudPlatformScope    = "https://www.googleapis.com/auth/cloud-platform"
)

type CloudSpeechConfig struct {
	ProjectID       string
	CredentialsJSON string
	Language        string
	Location        string
	Model           string
}

type CloudSpeechTranscriber struct {
	projectID       string
	credentialsJSON string
	defaultLanguage string
	location        string
	model           string
}

func NewCloudSpeechTranscriber(cfg CloudSpeechConfig) transcriber.Transcriber {
	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = "global"
	}
	return &CloudSpeechTranscriber{
		projectID:       cfg.ProjectID,
		credentialsJSON: cfg.CredentialsJSON,
		defaultLanguage: cfg.Language,
		location:        location,
		model:           strings.TrimSpace(cfg.Model),
	}
}

func (t *CloudSpeechTranscriber) StartStreaming(ctx context.Context, conferenceID, language string, receiver transcriber.ResultReceiver) (transcriber.StreamWriter, error) {
	if language == "" {
		language = t.defaultLanguage
	}
	slog.Info("starting cloud speech streaming", "conference_id", conferenceID, "location", t.location, "language", language, "model", t.model)

	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: []byte(t.credentialsJSON),
		Scopes:          []string{cloudPlatformScope},
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}
	opts := []option.ClientOption{option.WithAuthCredentials(creds)}
	if endpoint := t.endpoint(); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}

	configReq := t.streamingConfigRequest(language)
	open := func() (speechpb.Speech_StreamingRecognizeClient, error) {
		stream, err := client.StreamingRecognize(ctx)
		if err != nil {
			return nil, err
		}
		if err := stream.Send(configReq); err != nil {
			_ = stream.CloseSend()
			return nil, err
		}
		return stream, nil
	}
	stream, err := open()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("open recognize stream: %w", err)
	}
	slog.Info("cloud speech stream initialized", "conference_id", conferenceID)

	w := &streamWriter{
		conferenceID: conferenceID,
		stream:       stream,
		receiver:     receiver,
		open:         open,
		closeClient:  client.Close,
	}
	w.startReceiver(stream)
	return w, nil
}

// endpoint returns the regional endpoint, or "" for the global one.
func (t *CloudSpeechTranscriber) endpoint() string {
	if t.location == "global" {
		return ""
	}
	return fmt.Sprintf("%s-speech.googleapis.com:%d", t.location, speechAPIEndpointPort)
}

func (t *CloudSpeechTranscriber) recognizer() string {
	return fmt.Sprintf("projects/%s/locations/%s/recognizers/_", t.projectID, t.location)
}

func (t *CloudSpeechTranscriber) streamingConfigRequest(language string) *speechpb.StreamingRecognizeRequest {
	return &speechpb.StreamingRecognizeRequest{
		Recognizer: t.recognizer(),
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Model:         t.model,
					LanguageCodes: []string{language},
					DecodingConfig: &speechpb.RecognitionConfig_ExplicitDecodingConfig{
						ExplicitDecodingConfig: &speechpb.ExplicitDecodingConfig{
							Encoding:          speechpb.ExplicitDecodingConfig_LINEAR16,
							SampleRateHertz:   audioSampleRateHertz,
							AudioChannelCount: audioChannelCount,
						},
					},
					Features: &speechpb.RecognitionFeatures{EnableAutomaticPunctuation: true},
				},
				StreamingFeatures: &speechpb.StreamingRecognitionFeatures{InterimResults: true},
			},
		},
	}
}

type streamWriter struct {
	conferenceID string
	receiver     transcriber.ResultReceiver
	open         func() (speechpb.Speech_StreamingRecognizeClient, error)
	closeClient  func() error

	mu     sync.Mutex
	closed bool
	stream speechpb.Speech_StreamingRecognizeClient
}

func (w *streamWriter) Write(pcm []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return io.ErrClosedPipe
	}
	req := &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_Audio{Audio: pcm},
	}
	err := w.stream.Send(req)
	if err == nil {
		return nil
	}
	if !isReconnectableStreamError(err) {
		return err
	}
	slog.Warn("transcriber send failed with reconnectable error; reconnecting", "conference_id", w.conferenceID, "error", err)
	if err := w.reconnectLocked(); err != nil {
		return fmt.Errorf("reconnect stream: %w", err)
	}
	return w.stream.Send(req)
}

func (w *streamWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	return errors.Join(w.stream.CloseSend(), w.closeClient())
}

func (w *streamWriter) reconnectLocked() error {
	_ = w.stream.CloseSend()
	next, err := w.open()
	if err != nil {
		slog.Error("failed to reconnect transcriber stream", "conference_id", w.conferenceID, "error", err)
		return err
	}
	w.stream = next
	w.startReceiver(next)
	slog.Info("transcriber stream reconnected", "conference_id", w.conferenceID)
	return nil
}

func (w *streamWriter) startReceiver(stream speechpb.Speech_StreamingRecognizeClient) {
	go func() {
		for {
			resp, err := stream.Recv()
			if err != nil {
				w.handleRecvError(err)
				return
			}
			dispatchResults(resp, w.receiver)
		}
	}()
}

func (w *streamWriter) handleRecvError(err error) {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, context.Canceled), status.Code(err) == codes.Canceled:
		slog.Info("transcriber receive loop stopped", "conference_id", w.conferenceID, "reason", err.Error())
	case isReconnectableStreamError(err):
		slog.Warn("transcriber receive loop ended with reconnectable abort", "conference_id", w.conferenceID, "error", err)
	default:
		w.receiver.OnError(err)
	}
}

func dispatchResults(resp *speechpb.StreamingRecognizeResponse, receiver transcriber.ResultReceiver) {
	for i, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		receiver.OnResult(i, alts[0].GetTranscript(), result.GetIsFinal())
	}
}

func isReconnectableStreamError(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Aborted {
		return false
	}
	msg := strings.ToLower(st.Message())
	return strings.Contains(msg, "max duration of 5 minutes") ||
		strings.Contains(msg, "stream timed out after receiving no more client requests")
}
