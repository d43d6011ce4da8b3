package speech

import "time"

// ASRResponse 语音识别响应；Text 为空表示静音或无法辨识，不是错误。
type ASRResponse struct {
	RequestID string    `json:"requestId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// TTSResponse 语音合成响应
type TTSResponse struct {
	RequestID string    `json:"requestId"`
	AudioData []byte    `json:"-"`
	MimeType  string    `json:"mimeType"`
	CreatedAt time.Time `json:"createdAt"`
}
