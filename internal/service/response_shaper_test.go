package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoline-go/internal/config"
	"autoline-go/internal/model"
	"autoline-go/pkg/llm"
)

func newTestShaper(presign func(bucket, object string, expiry time.Duration) (string, error)) *ResponseShaper {
	s := NewResponseShaper(config.MinIOConfig{BucketName: "car-images", URLExpiryHours: 1})
	s.presign = presign
	return s
}

func TestShapePlainText(t *testing.T) {
	s := newTestShaper(nil)
	reply, functionCalled := s.Shape(&llm.ChatResult{Text: "  " + assistantAnswer + "  "})

	assert.Equal(t, model.ReplyText, reply.Type)
	assert.Equal(t, assistantAnswer, reply.Text)
	assert.False(t, functionCalled)
}

func TestShapeCarImagesToolCall(t *testing.T) {
	var requested []string
	s := newTestShaper(func(bucket, object string, _ time.Duration) (string, error) {
		require.Equal(t, "car-images", bucket)
		requested = append(requested, object)
		return "https://cdn.example.com/" + object, nil
	})

	reply, functionCalled := s.Shape(&llm.ChatResult{
		Text: "นี่คือรถที่คุณสนใจครับ",
		ToolCalls: []llm.ToolCall{{
			Name:      "show_car_images",
			Arguments: `{"car_keys":["city-2020-front.jpg","city-2020-side.jpg"],"title":"Honda City 2020"}`,
		}},
	})

	assert.True(t, functionCalled)
	require.Equal(t, model.ReplyRich, reply.Type)
	require.NotNil(t, reply.Payload)
	assert.Equal(t, "car_images", reply.Payload.Kind)
	assert.Equal(t, "Honda City 2020", reply.Payload.Title)
	require.Len(t, reply.Payload.Images, 2)
	assert.Equal(t, "https://cdn.example.com/city-2020-front.jpg", reply.Payload.Images[0].URL)
	assert.Equal(t, []string{"city-2020-front.jpg", "city-2020-side.jpg"}, requested)
}

func TestShapePresignFailureFallsBackToText(t *testing.T) {
	s := newTestShaper(func(_, _ string, _ time.Duration) (string, error) {
		return "", errors.New("minio unavailable")
	})

	reply, functionCalled := s.Shape(&llm.ChatResult{
		Text: assistantAnswer,
		ToolCalls: []llm.ToolCall{{
			Name:      "show_car_images",
			Arguments: `{"car_keys":["city-2020-front.jpg"]}`,
		}},
	})

	// 图片全部兑现失败时退化为纯文本，不返回空卡片
	assert.Equal(t, model.ReplyText, reply.Type)
	assert.Equal(t, assistantAnswer, reply.Text)
	assert.True(t, functionCalled)
}

func TestShapeBadToolArguments(t *testing.T) {
	s := newTestShaper(nil)
	reply, _ := s.Shape(&llm.ChatResult{
		Text:      assistantAnswer,
		ToolCalls: []llm.ToolCall{{Name: "show_car_images", Arguments: "not-json"}},
	})

	assert.Equal(t, model.ReplyText, reply.Type)
}

func TestShapeUnknownToolIgnored(t *testing.T) {
	s := newTestShaper(nil)
	reply, functionCalled := s.Shape(&llm.ChatResult{
		Text:      assistantAnswer,
		ToolCalls: []llm.ToolCall{{Name: "delete_everything", Arguments: "{}"}},
	})

	assert.Equal(t, model.ReplyText, reply.Type)
	assert.True(t, functionCalled)
}

func TestShapeEmptyText(t *testing.T) {
	s := newTestShaper(nil)
	reply, _ := s.Shape(&llm.ChatResult{Text: "   "})

	assert.Equal(t, model.ReplyText, reply.Type)
	assert.NotEmpty(t, reply.Text)
}
