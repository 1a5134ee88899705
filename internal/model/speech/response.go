package speech

import (
	"fmt"
	"time"
)

// TTSResponse 语音合成响应
type TTSResponse struct {
	SessionID string    `json:"sessionId"`
	AudioData []byte    `json:"-"`
	Duration  int64     `json:"duration"` // milliseconds
	Format    string    `json:"format"`
	RequestID string    `json:"requestId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// EventKind 识别事件类型
type EventKind int

const (
	EventPartial EventKind = iota
	EventFinal
	EventEnd
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventPartial:
		return "partial"
	case EventFinal:
		return "final"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// TranscriptEvent 识别流上的一个事件；End 或 Error 之后流关闭
type TranscriptEvent struct {
	Kind EventKind         `json:"kind"`
	Text string            `json:"text,omitempty"`
	Err  *RecognitionError `json:"error,omitempty"`
}

// 识别错误码
const (
	CodeNotSupported      = "not-supported"
	CodeStartFailed       = "start-failed"
	CodeNoSpeech          = "no-speech"
	CodeAudioCapture      = "audio-capture"
	CodeNotAllowed        = "not-allowed"
	CodeServiceNotAllowed = "service-not-allowed"
	CodeNetwork           = "network"
	CodeAborted           = "aborted"
)

// RecognitionError 识别失败，Code 为机器可读短码
type RecognitionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RecognitionError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}
