package model

// ReplyType 标识回复载荷的种类。
type ReplyType string

const (
	ReplyText ReplyType = "text"
	ReplyRich ReplyType = "rich"
)

// RichImage 是富回复中的一张图片（预签名 URL + 说明文字）。
type RichImage struct {
	URL     string `json:"url"`
	Caption string `json:"caption,omitempty"`
}

// RichPayload 是富回复的结构化载荷，例如车辆图片卡片。
type RichPayload struct {
	Kind   string      `json:"kind"`
	Title  string      `json:"title,omitempty"`
	Text   string      `json:"text,omitempty"`
	Images []RichImage `json:"images,omitempty"`
}

// Reply 是管道对一条入站消息的最终回复。
// Type 为 text 时只有 Text 有效；为 rich 时 Payload 有效，Text 作为降级文本。
type Reply struct {
	Type    ReplyType    `json:"type"`
	Text    string       `json:"text,omitempty"`
	Payload *RichPayload `json:"payload,omitempty"`
	// Degraded 标记超时/错误兜底产生的固定回复，这类回复不允许进入缓存。
	Degraded bool `json:"-"`
}

// NewTextReply 构造一条纯文本回复。
func NewTextReply(text string) *Reply {
	return &Reply{Type: ReplyText, Text: text}
}

// NewRichReply 构造一条富载荷回复，text 作为降级文本保留。
func NewRichReply(text string, payload *RichPayload) *Reply {
	return &Reply{Type: ReplyRich, Text: text, Payload: payload}
}
