package speech

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/arwa/internal/model/speech"
)

// newFakeVolcengine 启动模拟火山引擎的 WebSocket 服务，返回指向它的配置
func newFakeVolcengine(t *testing.T, handle func(t *testing.T, r *http.Request, conn *websocket.Conn)) *speech.SpeechConfig {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		handle(t, r, conn)
	}))
	t.Cleanup(srv.Close)

	return &speech.SpeechConfig{
		AppID:       "app",
		AccessToken: "token",
		BaseURL:     "ws" + strings.TrimPrefix(srv.URL, "http"),
		ASRLanguage: "ar-SA",
		TTSLanguage: "ar-EG",
		TTSVoice:    "ar_female_default",
		Timeout:     5 * time.Second,
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) *Message {
	t.Helper()
	msg, err := readMessage(conn)
	if err != nil {
		t.Errorf("server read: %v", err)
		return nil
	}
	return msg
}

func writeJSONFrame(t *testing.T, conn *websocket.Conn, flags MessageFlags, sequence int32, v any) {
	t.Helper()
	payload, err := encodeJSONPayload(v, GzipCompression)
	if err != nil {
		t.Errorf("encode payload: %v", err)
		return
	}
	msg := &Message{
		Header:   NewHeader(FullServerResponse, flags, JSONSerialization, GzipCompression),
		Sequence: sequence,
		Payload:  payload,
	}
	if err := writeMessage(conn, msg); err != nil {
		t.Errorf("server write: %v", err)
	}
}

func writeErrorFrame(t *testing.T, conn *websocket.Conn, code uint32, text string) {
	t.Helper()
	msg := &Message{
		Header:    NewHeader(ErrorMessage, NoSequenceNumber, JSONSerialization, NoCompression),
		ErrorCode: code,
		Payload:   []byte(text),
	}
	if err := writeMessage(conn, msg); err != nil {
		t.Errorf("server write: %v", err)
	}
}

func asrResult(utterances ...asrUtterance) map[string]any {
	text := make([]string, 0, len(utterances))
	for _, u := range utterances {
		text = append(text, u.Text)
	}
	return map[string]any{
		"code":   asrSuccessCode,
		"result": map[string]any{"text": strings.Join(text, " "), "utterances": utterances},
	}
}

func decodeJSON(t *testing.T, msg *Message, v any) {
	t.Helper()
	payload, err := msg.payload()
	if err != nil {
		t.Errorf("payload: %v", err)
		return
	}
	if err := json.Unmarshal(payload, v); err != nil {
		t.Errorf("unmarshal: %v", err)
	}
}

// collectEvents 读取事件直到通道关闭
func collectEvents(t *testing.T, stream RecognitionStream) []speech.TranscriptEvent {
	t.Helper()
	var events []speech.TranscriptEvent
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-stream.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("stream did not close, events so far: %+v", events)
		}
	}
}

func newTestASRClient(t *testing.T, cfg *speech.SpeechConfig) *VolcengineASRClient {
	client := NewVolcengineASRClient(cfg, zaptest.NewLogger(t))
	client.stopGrace = time.Second
	return client
}
