package speech

// ASRRequest 语音识别请求
type ASRRequest struct {
	RequestID string `json:"requestId"`
	AudioData []byte `json:"-"`
	Format    string `json:"format"` // wav, mp3, webm, etc.
}

// TTSRequest 语音合成请求
type TTSRequest struct {
	RequestID string  `json:"requestId"`
	Text      string  `json:"text"`
	Voice     string  `json:"voice"`
	Speed     float32 `json:"speed"` // 语速倍率 0.5-2.0
}
