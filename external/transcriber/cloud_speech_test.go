package transcriber

import (
	"errors"
	"fmt"
	"io"
	"testing"

	speechpb "cloud.google.com/go/speech/apiv2/speechpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type recordingReceiver struct {
	results []string
	final   []bool
	errs    []error
}

func (r *recordingReceiver) OnResult(_ int, text string, isFinal bool) {
	r.results = append(r.results, text)
	r.final = append(r.final, isFinal)
}

func (r *recordingReceiver) OnError(err error) {
	r.errs = append(r.errs, err)
}

func TestIsReconnectableStreamError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"eof", io.EOF, true},
		{"wrapped eof", fmt.Errorf("recv: %w", io.EOF), true},
		{"max duration", status.Error(codes.Aborted, "Max duration of 5 minutes reached for stream."), true},
		{"idle timeout", status.Error(codes.Aborted, "Stream timed out after receiving no more client requests."), true},
		{"other abort", status.Error(codes.Aborted, "quota"), false},
		{"invalid argument", status.Error(codes.InvalidArgument, "bad config"), false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := isReconnectableStreamError(tc.err); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestEndpointAndRecognizer(t *testing.T) {
	regional := NewCloudSpeechTranscriber(CloudSpeechConfig{ProjectID: "p", Location: " asia-northeast1 "}).(*CloudSpeechTranscriber)
	if got := regional.endpoint(); got != "asia-northeast1-speech.googleapis.com:443" {
		t.Fatalf("unexpected endpoint: %s", got)
	}
	if got := regional.recognizer(); got != "projects/p/locations/asia-northeast1/recognizers/_" {
		t.Fatalf("unexpected recognizer: %s", got)
	}

	global := NewCloudSpeechTranscriber(CloudSpeechConfig{ProjectID: "p"}).(*CloudSpeechTranscriber)
	if got := global.endpoint(); got != "" {
		t.Fatalf("global location should use the default endpoint, got %s", got)
	}
}

func TestStreamingConfigRequest(t *testing.T) {
	tr := NewCloudSpeechTranscriber(CloudSpeechConfig{ProjectID: "p", Location: "global", Model: "chirp_3"}).(*CloudSpeechTranscriber)
	req := tr.streamingConfigRequest("ja-JP")

	cfg := req.GetStreamingConfig().GetConfig()
	if cfg.GetModel() != "chirp_3" {
		t.Fatalf("unexpected model: %s", cfg.GetModel())
	}
	if len(cfg.GetLanguageCodes()) != 1 || cfg.GetLanguageCodes()[0] != "ja-JP" {
		t.Fatalf("unexpected language codes: %v", cfg.GetLanguageCodes())
	}
	dec := cfg.GetExplicitDecodingConfig()
	if dec.GetSampleRateHertz() != audioSampleRateHertz || dec.GetAudioChannelCount() != audioChannelCount {
		t.Fatalf("unexpected decoding config: %+v", dec)
	}
	if dec.GetEncoding() != speechpb.ExplicitDecodingConfig_LINEAR16 {
		t.Fatalf("unexpected encoding: %v", dec.GetEncoding())
	}
}

func TestDispatchResults_SkipsEmptyAlternatives(t *testing.T) {
	rec := &recordingReceiver{}
	dispatchResults(&speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "hello"}}, IsFinal: true},
			{},
			{Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: "wor"}}},
		},
	}, rec)

	if len(rec.results) != 2 || rec.results[0] != "hello" || rec.results[1] != "wor" {
		t.Fatalf("unexpected results: %v", rec.results)
	}
	if !rec.final[0] || rec.final[1] {
		t.Fatalf("unexpected final flags: %v", rec.final)
	}
}

func TestHandleRecvError_OnlyReportsUnexpectedErrors(t *testing.T) {
	rec := &recordingReceiver{}
	w := &streamWriter{conferenceID: "c-1", receiver: rec}

	w.handleRecvError(io.EOF)
	w.handleRecvError(status.Error(codes.Canceled, "context canceled"))
	w.handleRecvError(status.Error(codes.Aborted, "Max duration of 5 minutes reached"))
	w.handleRecvError(status.Error(codes.PermissionDenied, "denied"))

	if len(rec.errs) != 1 || status.Code(rec.errs[0]) != codes.PermissionDenied {
		t.Fatalf("unexpected reported errors: %v", rec.errs)
	}
}
