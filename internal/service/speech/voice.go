package speech

import (
	"strings"

	"github.com/zhouzirui/arwa/internal/model/speech"
)

// 音色名称中表示女声的标记
var feminineMarkers = []string{"female", "أنثى"}

// SelectVoice 按优先级挑选音色：
// 同地区女声 > 同语种女声 > 同地区 > 同语种 > nil（平台默认）
func SelectVoice(voices []speech.Voice, locale string) *speech.Voice {
	want := normalizeLocale(locale)
	if want == "" || len(voices) == 0 {
		return nil
	}
	lang := languageOf(want)

	matchers := []func(speech.Voice) bool{
		func(v speech.Voice) bool { return normalizeLocale(v.Lang) == want && isFeminine(v) },
		func(v speech.Voice) bool { return languageOf(normalizeLocale(v.Lang)) == lang && isFeminine(v) },
		func(v speech.Voice) bool { return normalizeLocale(v.Lang) == want },
		func(v speech.Voice) bool { return languageOf(normalizeLocale(v.Lang)) == lang },
	}

	for _, match := range matchers {
		for i := range voices {
			if match(voices[i]) {
				v := voices[i]
				return &v
			}
		}
	}
	return nil
}

func normalizeLocale(locale string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(locale), "_", "-"))
}

func languageOf(locale string) string {
	if idx := strings.IndexByte(locale, '-'); idx >= 0 {
		return locale[:idx]
	}
	return locale
}

func isFeminine(v speech.Voice) bool {
	name := strings.ToLower(v.Name)
	for _, marker := range feminineMarkers {
		if strings.Contains(name, marker) {
			return true
		}
	}
	return false
}
