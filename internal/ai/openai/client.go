package openai

import (
	"context"
	"strings"
	"time"

	"backend/pkg/aiinterface"

	openai "github.com/sashabaranov/go-openai"
)

// Client OpenAI 客户端适配器
type Client struct {
	client     *openai.Client
	modelID    string
	maxRetries int
}

// NewClient 创建 OpenAI 客户端
func NewClient(config *aiinterface.ClientConfig) (*Client, error) {
	// 验证配置
	if config.APIKey == "" {
		return nil, &aiinterface.ClientError{
			Type:    aiinterface.ErrorTypeAuth,
			Message: "OpenAI API Key 不能为空",
		}
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.OrgID != "" {
		clientConfig.OrgID = config.OrgID
	}

	// 设置默认值
	maxRetries := config.MaxRetries
	if maxRetries == 0 {
		maxRetries = 3
	}

	return &Client{
		client:     openai.NewClientWithConfig(clientConfig),
		modelID:    config.Model,
		maxRetries: maxRetries,
	}, nil
}

// ChatCompletion 对话补全（非流式）
func (c *Client) ChatCompletion(ctx context.Context, req *aiinterface.ChatCompletionRequest) (*aiinterface.ChatCompletionResponse, error) {
	// 转换消息格式
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	// 构建请求
	openaiReq := openai.ChatCompletionRequest{
		Model:       c.modelID,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}

	// 调用 API（带重试，指数退避）
	var resp openai.ChatCompletionResponse
	var err error
	for i := 0; i <= c.maxRetries; i++ {
		resp, err = c.client.CreateChatCompletion(ctx, openaiReq)
		if err == nil {
			break
		}

		if !isRetryableError(err) {
			break
		}

		if i < c.maxRetries {
			backoff := time.Duration(1<<uint(i)) * time.Second
			select {
			case <-ctx.Done():
				return nil, wrapError(ctx.Err())
			case <-time.After(backoff):
			}
		}
	}

	if err != nil {
		return nil, wrapError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, &aiinterface.ClientError{
			Type:    aiinterface.ErrorTypeServerError,
			Message: "API 返回空响应",
		}
	}

	return &aiinterface.ChatCompletionResponse{
		ID:      resp.ID,
		Model:   resp.Model,
		Content: resp.Choices[0].Message.Content,
		Usage: aiinterface.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// Name 返回客户端名称
func (c *Client) Name() string {
	return "openai"
}

// Close 关闭客户端
func (c *Client) Close() error {
	// OpenAI 客户端无需显式关闭
	return nil
}

// isRetryableError 判断错误是否可重试
func isRetryableError(err error) bool {
	// 简化判断：网络错误和服务器错误可重试
	msg := strings.ToLower(err.Error())
	for _, key := range []string{"timeout", "connection", "rate limit", "429", "500", "502", "503", "504"} {
		if strings.Contains(msg, key) {
			return true
		}
	}
	return false
}

// wrapError 包装错误
func wrapError(err error) *aiinterface.ClientError {
	msg := strings.ToLower(err.Error())

	var errType aiinterface.ErrorType
	switch {
	case strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		errType = aiinterface.ErrorTypeAuth
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		errType = aiinterface.ErrorTypeRateLimit
	case strings.Contains(msg, "400") || strings.Contains(msg, "invalid"):
		errType = aiinterface.ErrorTypeInvalidParams
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503"):
		errType = aiinterface.ErrorTypeServerError
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection"):
		errType = aiinterface.ErrorTypeNetwork
	default:
		errType = aiinterface.ErrorTypeUnknown
	}

	return &aiinterface.ClientError{
		Type:    errType,
		Message: "OpenAI API 错误",
		Err:     err,
	}
}
