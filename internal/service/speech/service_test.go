package speech

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/arwa/internal/model/speech"
)

func TestVolcenginePlatformCapabilities(t *testing.T) {
	cfg := &speech.SpeechConfig{AppID: "app", AccessToken: "token"}
	sink := FuncSink(func(context.Context, []byte, string) error { return nil })

	cases := []struct {
		name        string
		cfg         *speech.SpeechConfig
		source      AudioSource
		sink        AudioSink
		recognition bool
		synthesis   bool
	}{
		{name: "configured", cfg: cfg, source: NewPipeSource(), sink: sink, recognition: true, synthesis: true},
		{name: "no credentials", cfg: &speech.SpeechConfig{}, source: NewPipeSource(), sink: sink},
		{name: "no audio devices", cfg: cfg},
		{name: "missing capture program", cfg: cfg, source: CommandSource{Command: "definitely-not-arecord"}, sink: sink, synthesis: true},
	}

	for _, tc := range cases {
		p := NewVolcenginePlatform(tc.cfg, tc.source, tc.sink, zaptest.NewLogger(t))
		if p.RecognitionSupported() != tc.recognition || p.SynthesisSupported() != tc.synthesis {
			t.Errorf("%s: recognition=%v synthesis=%v, want %v/%v", tc.name,
				p.RecognitionSupported(), p.SynthesisSupported(), tc.recognition, tc.synthesis)
		}
	}
}

func TestVolcenginePlatformVoices(t *testing.T) {
	cfg := &speech.SpeechConfig{
		TTSVoice:    "ar_default",
		TTSLanguage: "ar-EG",
		Voices:      []speech.Voice{{ID: "ar_female_1", Name: "Salma Female", Lang: "ar-EG"}},
	}
	p := NewVolcenginePlatform(cfg, nil, nil, zaptest.NewLogger(t))

	voices := p.Voices()
	if len(voices) != 2 || voices[1].ID != "ar_default" || voices[1].Lang != "ar-EG" {
		t.Fatalf("unexpected voices %+v", voices)
	}

	cfg.Voices = append(cfg.Voices, speech.Voice{ID: "ar_default", Name: "Default", Lang: "ar-EG"})
	if got := p.Voices(); len(got) != 2 {
		t.Fatalf("expected configured voice not to be duplicated, got %+v", got)
	}
}

func TestVolcenginePlatformUnsupportedRecognition(t *testing.T) {
	p := NewVolcenginePlatform(&speech.SpeechConfig{}, nil, nil, zaptest.NewLogger(t))

	_, err := p.StartRecognition(context.Background(), speech.RecognitionOptions{})
	var recErr *speech.RecognitionError
	if !errors.As(err, &recErr) || recErr.Code != speech.CodeNotSupported {
		t.Fatalf("expected not-supported, got %v", err)
	}
	if err := p.Speak(context.Background(), speech.Utterance{Text: "x"}); err == nil {
		t.Fatal("expected Speak to fail without synthesis")
	}
}

func TestVolcenginePlatformSpeakPlaysAudio(t *testing.T) {
	cfg := newFakeVolcengine(t, func(t *testing.T, r *http.Request, conn *websocket.Conn) {
		first := readFrame(t, conn)
		if first == nil {
			return
		}
		var req volcengineTTSRequest
		decodeJSON(t, first, &req)
		if req.ReqParams.Speaker != "ar_female_1" || req.ReqParams.Language != "ar-EG" {
			t.Errorf("unexpected request %+v", req.ReqParams)
		}
		audio := &Message{
			Header:  NewHeader(AudioOnlyServerResponse, LastPacketNoSequence, NoSerialization, NoCompression),
			Payload: []byte("mp3-bytes"),
		}
		if err := writeMessage(conn, audio); err != nil {
			t.Errorf("write audio: %v", err)
		}
		writeJSONFrame(t, conn, LastPacketNoSequence, 0, map[string]any{"code": 0})
	})

	var played bytes.Buffer
	sink := FuncSink(func(_ context.Context, audio []byte, format string) error {
		played.Write(audio)
		return nil
	})
	p := NewVolcenginePlatform(cfg, nil, sink, zaptest.NewLogger(t))

	voice := &speech.Voice{ID: "ar_female_1", Lang: "ar-EG"}
	if err := p.Speak(context.Background(), speech.Utterance{Text: "أهلاً", Lang: "ar-EG", Voice: voice, Pitch: 1, Rate: 1, Volume: 1}); err != nil {
		t.Fatalf("Speak err: %v", err)
	}
	if played.String() != "mp3-bytes" {
		t.Fatalf("unexpected played audio %q", played.String())
	}
}
