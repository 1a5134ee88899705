package speech

import (
	"testing"

	"github.com/zhouzirui/arwa/internal/model/speech"
)

func TestSelectVoice(t *testing.T) {
	var (
		egFemale = speech.Voice{ID: "eg-f", Name: "Salma Female", Lang: "ar-EG"}
		egMale   = speech.Voice{ID: "eg-m", Name: "Omar", Lang: "ar_EG"}
		saFemale = speech.Voice{ID: "sa-f", Name: "نورة أنثى", Lang: "ar-SA"}
		saMale   = speech.Voice{ID: "sa-m", Name: "Fahd", Lang: "ar-SA"}
		enFemale = speech.Voice{ID: "en-f", Name: "Amy Female", Lang: "en-US"}
	)

	cases := []struct {
		name   string
		voices []speech.Voice
		want   string
	}{
		{name: "exact locale feminine", voices: []speech.Voice{saFemale, egMale, egFemale}, want: "eg-f"},
		{name: "same language feminine", voices: []speech.Voice{egMale, saMale, saFemale}, want: "sa-f"},
		{name: "exact locale", voices: []speech.Voice{enFemale, saMale, egMale}, want: "eg-m"},
		{name: "same language", voices: []speech.Voice{enFemale, saMale}, want: "sa-m"},
		{name: "platform default", voices: []speech.Voice{enFemale}, want: ""},
		{name: "empty catalogue", voices: nil, want: ""},
	}

	for _, tc := range cases {
		got := SelectVoice(tc.voices, "ar-EG")
		gotID := ""
		if got != nil {
			gotID = got.ID
		}
		if gotID != tc.want {
			t.Errorf("%s: SelectVoice = %q, want %q", tc.name, gotID, tc.want)
		}
	}
}

func TestSelectVoiceCaseInsensitive(t *testing.T) {
	voices := []speech.Voice{{ID: "x", Name: "LAYLA FEMALE", Lang: "AR_eg"}}
	if got := SelectVoice(voices, "ar-EG"); got == nil || got.ID != "x" {
		t.Fatalf("expected case-insensitive match, got %+v", got)
	}
}

func TestLocalizeRecognitionError(t *testing.T) {
	cases := []struct {
		in   speech.RecognitionError
		want string
	}{
		{in: speech.RecognitionError{Code: speech.CodeNoSpeech, Message: "raw"}, want: "لم يتم اكتشاف أي كلام. حاول التحدث بوضوح."},
		{in: speech.RecognitionError{Code: speech.CodeServiceNotAllowed}, want: "تم رفض إذن استخدام الميكروفون."},
		{in: speech.RecognitionError{Code: speech.CodeAborted, Message: "aborted by user"}, want: "aborted by user"},
		{in: speech.RecognitionError{Code: "bad-grammar"}, want: "حدث خطأ غير معروف: bad-grammar"},
	}

	for _, tc := range cases {
		got := LocalizeRecognitionError(&tc.in)
		if got.Code != tc.in.Code || got.Message != tc.want {
			t.Errorf("LocalizeRecognitionError(%+v) = %+v, want message %q", tc.in, got, tc.want)
		}
	}
	if LocalizeRecognitionError(nil) != nil {
		t.Error("expected nil for nil error")
	}
}
