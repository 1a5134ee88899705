package conversation

import "github.com/zhouzirui/arwa/internal/model/chat"

// State is a point-in-time copy of everything the presentation layer renders.
type State struct {
	Messages  []chat.Message `json:"messages"`
	Draft     string         `json:"draft"`
	Awaiting  bool           `json:"awaiting"`
	Listening bool           `json:"listening"`
	Error     string         `json:"error,omitempty"`
	Ready     bool           `json:"ready"`

	RecognitionSupported bool `json:"recognitionSupported"`
	SynthesisSupported   bool `json:"synthesisSupported"`
}

// CanToggleVoice reports whether the microphone affordance is enabled.
// Stopping an active stream is always allowed.
func (s State) CanToggleVoice() bool {
	if s.Listening {
		return true
	}
	return s.RecognitionSupported && s.Ready && !s.Awaiting
}

// CanSend reports whether a typed message would be accepted.
func (s State) CanSend() bool {
	return s.Ready && !s.Awaiting
}

// ErrorShownInLog reports whether the banner text already appears as the
// text of a bot message, in which case the banner is redundant.
func (s State) ErrorShownInLog() bool {
	if s.Error == "" {
		return false
	}
	for _, m := range s.Messages {
		if m.Sender == chat.SenderBot && m.Text == s.Error {
			return true
		}
	}
	return false
}

// 提示文案
const (
	MessageUnsupported     = "عذراً، متصفحك لا يدعم خاصية التعرف على الصوت أو النطق."
	MessageInitFailed      = "فشل في تهيئة المحادثة مع الذكاء الاصطناعي. يرجى التحقق من مفتاح API."
	MessageSendFailed      = "عذراً، حدث خطأ أثناء معالجة طلبك."
	recognitionErrorFormat = "خطأ في التعرف على الصوت: %s (الكود: %s)"
)
