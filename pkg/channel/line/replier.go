package line

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"lineecho/pkg/config"
)

// Replier sends one text reply against a single-use reply token.
type Replier interface {
	Reply(ctx context.Context, replyToken string, text string) error
}

// MessagingReplier sends replies through the LINE Messaging API.
type MessagingReplier struct {
	api *messaging_api.MessagingApiAPI
}

// NewMessagingReplier builds the Messaging API client once from the channel access token.
func NewMessagingReplier(cfg config.LineConfig) (*MessagingReplier, error) {
	token := strings.TrimSpace(cfg.ChannelAccessToken)
	if token == "" {
		return nil, errors.New("line.channel_access_token is required")
	}

	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = config.DefaultAPITimeoutSec * time.Second
	}

	options := []messaging_api.MessagingApiAPIOption{
		messaging_api.WithHTTPClient(&http.Client{Timeout: timeout}),
	}
	if endpoint := strings.TrimSpace(cfg.APIEndpoint); endpoint != "" {
		options = append(options, messaging_api.WithEndpoint(endpoint))
	}

	api, err := messaging_api.NewMessagingApiAPI(token, options...)
	if err != nil {
		return nil, fmt.Errorf("initialize messaging api client: %w", err)
	}

	return &MessagingReplier{api: api}, nil
}

// Reply makes a single attempt; the token is never retried.
func (r *MessagingReplier) Reply(ctx context.Context, replyToken string, text string) error {
	if strings.TrimSpace(replyToken) == "" {
		return errors.New("reply token is required")
	}

	_, err := r.api.WithContext(ctx).ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages: []messaging_api.MessageInterface{
			messaging_api.TextMessage{Text: text},
		},
	})
	if err != nil {
		return fmt.Errorf("reply message: %w", err)
	}

	return nil
}
