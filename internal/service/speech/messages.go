package speech

import "github.com/zhouzirui/arwa/internal/model/speech"

// 面向用户的识别错误提示
var recognitionErrorText = map[string]string{
	speech.CodeNotSupported:      "خاصية التعرف على الصوت غير مدعومة في هذا المتصفح.",
	speech.CodeNoSpeech:          "لم يتم اكتشاف أي كلام. حاول التحدث بوضوح.",
	speech.CodeAudioCapture:      "مشكلة في التقاط الصوت. تحقق من الميكروفون.",
	speech.CodeNotAllowed:        "تم رفض إذن استخدام الميكروفون.",
	speech.CodeServiceNotAllowed: "تم رفض إذن استخدام الميكروفون.",
	speech.CodeNetwork:           "مشكلة في الشبكة أثناء التعرف على الصوت.",
}

const (
	unknownRecognitionErrorPrefix = "حدث خطأ غير معروف: "
	startFailedPrefix             = "فشل بدء التعرف على الصوت: "
)

// LocalizeRecognitionError 将平台错误转换为面向用户的提示，Code 保持不变。
// 未知错误码优先保留引擎给出的描述。
func LocalizeRecognitionError(err *speech.RecognitionError) *speech.RecognitionError {
	if err == nil {
		return nil
	}
	text, ok := recognitionErrorText[err.Code]
	if !ok {
		text = err.Message
		if text == "" {
			text = unknownRecognitionErrorPrefix + err.Code
		}
	}
	return &speech.RecognitionError{Code: err.Code, Message: text}
}
