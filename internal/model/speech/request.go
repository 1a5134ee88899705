package speech

// RecognitionOptions 流式识别参数
type RecognitionOptions struct {
	SessionID      string `json:"sessionId"`
	Language       string `json:"language"` // ar-SA, en-US, etc.
	InterimResults bool   `json:"interimResults"`
	Continuous     bool   `json:"continuous"`
}

// TTSRequest 语音合成请求
type TTSRequest struct {
	SessionID string  `json:"sessionId"`
	Text      string  `json:"text"`
	Voice     string  `json:"voice"`  // 声音类型
	Speed     float32 `json:"speed"`  // 语速倍率 0.5-2.0
	Volume    float32 `json:"volume"` // 音量 0.0-1.0
	Pitch     float32 `json:"pitch"`
	Format    string  `json:"format"`   // mp3, pcm, etc.
	Language  string  `json:"language"` // ar-EG, en-US, etc.
}

// Utterance 一次待朗读的文本及其发音参数
type Utterance struct {
	Text   string  `json:"text"`
	Lang   string  `json:"lang"`
	Voice  *Voice  `json:"voice,omitempty"` // nil 表示使用平台默认音色
	Pitch  float32 `json:"pitch"`
	Rate   float32 `json:"rate"`
	Volume float32 `json:"volume"`
}

// Voice 可用的合成音色
type Voice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Lang string `json:"lang"`
}
