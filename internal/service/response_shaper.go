package service

import (
	"encoding/json"
	"strings"
	"time"

	"autoline-go/internal/config"
	"autoline-go/internal/model"
	"autoline-go/pkg/llm"
	"autoline-go/pkg/log"
	"autoline-go/pkg/storage"
)

const defaultURLExpiryHours = 1

// showCarImagesArgs 对应 show_car_images 工具调用的参数。
type showCarImagesArgs struct {
	CarKeys []string `json:"car_keys"`
	Title   string   `json:"title"`
}

// ResponseShaper 把模型的原始输出整形为对外回复。
// 工具调用在这里兑现：车辆图片的 object key 换成预签名 URL。
type ResponseShaper struct {
	minioCfg config.MinIOConfig
	// presign 可注入，默认走 MinIO 预签名
	presign func(bucket, object string, expiry time.Duration) (string, error)
}

// NewResponseShaper 创建响应整形器。
func NewResponseShaper(minioCfg config.MinIOConfig) *ResponseShaper {
	return &ResponseShaper{
		minioCfg: minioCfg,
		presign:  storage.GetPresignedURL,
	}
}

// Shape 把补全结果转换为回复，返回回复和是否发生了工具调用。
// 工具调用解析失败或图片全部兑现失败时退化为纯文本回复。
func (s *ResponseShaper) Shape(result *llm.ChatResult) (*model.Reply, bool) {
	text := strings.TrimSpace(result.Text)

	for _, tc := range result.ToolCalls {
		if tc.Name != "show_car_images" {
			log.Warnf("模型请求了未知工具，忽略: %s", tc.Name)
			continue
		}

		var args showCarImagesArgs
		if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
			log.Warnf("解析 show_car_images 参数失败: %v", err)
			continue
		}

		images := s.resolveImages(args.CarKeys)
		if len(images) == 0 {
			continue
		}

		payload := &model.RichPayload{
			Kind:   "car_images",
			Title:  args.Title,
			Text:   text,
			Images: images,
		}
		if text == "" {
			text = "รูปรถที่คุณสนใจค่ะ"
		}
		return model.NewRichReply(text, payload), true
	}

	if text == "" {
		// 模型偶尔返回空内容，按生成失败处理前先兜一层
		text = "ขออภัยค่ะ รบกวนพิมพ์ข้อความอีกครั้งนะคะ"
	}
	return model.NewTextReply(text), len(result.ToolCalls) > 0
}

func (s *ResponseShaper) resolveImages(keys []string) []model.RichImage {
	expiry := time.Duration(s.minioCfg.URLExpiryHours) * time.Hour
	if expiry <= 0 {
		expiry = defaultURLExpiryHours * time.Hour
	}

	var images []model.RichImage
	for _, key := range keys {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		url, err := s.presign(s.minioCfg.BucketName, key, expiry)
		if err != nil {
			log.Warnf("生成车辆图片预签名 URL 失败: key=%s, err=%v", key, err)
			continue
		}
		images = append(images, model.RichImage{URL: url, Caption: key})
	}
	return images
}
