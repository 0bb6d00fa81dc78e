// Package line 提供 LINE Messaging API 的精简客户端：
// 回调签名校验与消息回复/推送。平台相关的封装止步于此，
// 管道内部只流转与平台无关的 Reply。
package line

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"autoline-go/internal/config"
	"autoline-go/internal/model"
)

const defaultAPIBaseURL = "https://api.line.me"

// Client 是 LINE 回复/推送通道的接口。
type Client interface {
	// Reply 使用 webhook 事件携带的 replyToken 回复消息。
	Reply(ctx context.Context, replyToken string, reply *model.Reply) error
	// Push 主动向用户推送消息（replyToken 过期时的兜底通道）。
	Push(ctx context.Context, to string, reply *model.Reply) error
}

type lineClient struct {
	cfg    config.LineConfig
	client *http.Client
}

// NewClient 创建 LINE 客户端。
func NewClient(cfg config.LineConfig) Client {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	return &lineClient{cfg: cfg, client: &http.Client{}}
}

// VerifySignature 校验 X-Line-Signature 头（HMAC-SHA256 + base64）。
// 未配置 channel secret 时跳过校验。
func VerifySignature(channelSecret string, body []byte, signature string) bool {
	if channelSecret == "" {
		return true
	}
	mac := hmac.New(sha256.New, []byte(channelSecret))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

type lineMessage struct {
	Type               string `json:"type"`
	Text               string `json:"text,omitempty"`
	OriginalContentURL string `json:"originalContentUrl,omitempty"`
	PreviewImageURL    string `json:"previewImageUrl,omitempty"`
}

// buildMessages 把与平台无关的 Reply 转换为 LINE 消息列表。
// 富回复拆成文本 + 图片消息，LINE 单次回复最多 5 条。
func buildMessages(reply *model.Reply) []lineMessage {
	var msgs []lineMessage
	if reply.Text != "" {
		msgs = append(msgs, lineMessage{Type: "text", Text: reply.Text})
	}
	if reply.Type == model.ReplyRich && reply.Payload != nil {
		for _, img := range reply.Payload.Images {
			if len(msgs) >= 5 {
				break
			}
			msgs = append(msgs, lineMessage{
				Type:               "image",
				OriginalContentURL: img.URL,
				PreviewImageURL:    img.URL,
			})
		}
	}
	if len(msgs) == 0 {
		msgs = append(msgs, lineMessage{Type: "text", Text: reply.Text})
	}
	return msgs
}

func (c *lineClient) Reply(ctx context.Context, replyToken string, reply *model.Reply) error {
	payload := map[string]interface{}{
		"replyToken": replyToken,
		"messages":   buildMessages(reply),
	}
	return c.post(ctx, "/v2/bot/message/reply", payload)
}

func (c *lineClient) Push(ctx context.Context, to string, reply *model.Reply) error {
	payload := map[string]interface{}{
		"to":       to,
		"messages": buildMessages(reply),
	}
	return c.post(ctx, "/v2/bot/message/push", payload)
}

func (c *lineClient) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal line request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create line request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.ChannelToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call line api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("line api returned non-200 status: %s, body: %s", resp.Status, string(respBody))
	}
	return nil
}
