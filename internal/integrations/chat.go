package integrations

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/soochol/autoflow/internal/xjson"
)

const defaultTelegramAPI = "https://api.telegram.org"

// ChatMessageIntegration posts a message to a chat service.
//
// Config: message, provider ("slack" or "telegram", default slack).
// slack: webhookUrl, channel, username.
// telegram: botToken, chatId, parseMode.
type ChatMessageIntegration struct {
	Client *http.Client
	// TelegramAPI overrides the Telegram Bot API base URL.
	TelegramAPI string
}

func (c *ChatMessageIntegration) Type() string { return TypeChatMessage }
func (c *ChatMessageIntegration) RequiredFields() []string {
	return []string{"message"}
}

func (c *ChatMessageIntegration) Execute(ctx context.Context, config, _ map[string]any) (map[string]any, error) {
	message := stringField(config, "message")

	var (
		target  string
		payload map[string]string
	)
	switch provider := stringField(config, "provider"); provider {
	case "", "slack":
		target = stringField(config, "webhookUrl")
		if target == "" {
			return nil, fmt.Errorf("webhookUrl is required")
		}
		payload = map[string]string{"text": message}
		if channel := stringField(config, "channel"); channel != "" {
			payload["channel"] = channel
		}
		if username := stringField(config, "username"); username != "" {
			payload["username"] = username
		}
	case "telegram":
		token, chatID := stringField(config, "botToken"), stringField(config, "chatId")
		if token == "" || chatID == "" {
			return nil, fmt.Errorf("telegram needs botToken and chatId")
		}
		base := c.TelegramAPI
		if base == "" {
			base = defaultTelegramAPI
		}
		target = fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(base, "/"), token)
		payload = map[string]string{"chat_id": chatID, "text": message}
		if mode := stringField(config, "parseMode"); mode != "" {
			payload["parse_mode"] = mode
		}
	default:
		return nil, fmt.Errorf("unknown chat provider %q", provider)
	}

	statusCode, err := c.post(ctx, target, payload)
	if err != nil {
		return nil, err
	}
	return map[string]any{"sent": true, "statusCode": statusCode}, nil
}

func (c *ChatMessageIntegration) post(ctx context.Context, url string, payload map[string]string) (int, error) {
	body, err := xjson.Marshal(payload)
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient(c.Client).Do(req)
	if err != nil {
		return 0, fmt.Errorf("chat send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("chat service returned %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}
