package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"lineecho/pkg/channel/line"
	"lineecho/pkg/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	simulateURL          string
	simulateReplyToken   string
	simulateBadSignature bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate [text]",
	Short: "Post a signed text webhook to a running receiver",
	Long: "Builds a one-event LINE text webhook, signs it with the configured channel secret, and posts it to the callback URL. " +
		"The reply token is synthetic, so a receiver talking to the real Messaging API answers 400 once the reply is rejected.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if strings.TrimSpace(cfg.Line.ChannelSecret) == "" {
			return errors.New("line.channel_secret is required")
		}

		target := strings.TrimSpace(simulateURL)
		if target == "" {
			target = callbackURL(cfg)
		}

		replyToken := strings.TrimSpace(simulateReplyToken)
		if replyToken == "" {
			replyToken = uuid.NewString()
		}

		text := strings.Join(args, " ")
		body, err := buildTextWebhook(replyToken, text, time.Now())
		if err != nil {
			return err
		}

		secret := cfg.Line.ChannelSecret
		if simulateBadSignature {
			secret = "not-" + secret
		}

		status, err := postWebhook(target, body, line.Sign(secret, body))
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), renderSimulation(defaultTheme(), target, replyToken, text, status))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simulateURL, "url", "", "callback URL (defaults to the configured server address and callback path)")
	simulateCmd.Flags().StringVar(&simulateReplyToken, "reply-token", "", "reply token to embed (defaults to a random UUID)")
	simulateCmd.Flags().BoolVar(&simulateBadSignature, "bad-signature", false, "sign with a wrong secret to exercise rejection")
}

// callbackURL points at the local server; a wildcard bind host is dialed as loopback.
func callbackURL(cfg *config.Config) string {
	address := cfg.Server.Address()
	if strings.HasPrefix(address, config.DefaultHost+":") {
		address = "127.0.0.1" + strings.TrimPrefix(address, config.DefaultHost)
	}

	return "http://" + address + cfg.Line.CallbackPath
}

type simulatedSource struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type simulatedMessage struct {
	Type       string `json:"type"`
	ID         string `json:"id"`
	QuoteToken string `json:"quoteToken"`
	Text       string `json:"text"`
}

type simulatedEvent struct {
	Type            string           `json:"type"`
	Mode            string           `json:"mode"`
	Timestamp       int64            `json:"timestamp"`
	WebhookEventID  string           `json:"webhookEventId"`
	DeliveryContext map[string]bool  `json:"deliveryContext"`
	Source          simulatedSource  `json:"source"`
	ReplyToken      string           `json:"replyToken"`
	Message         simulatedMessage `json:"message"`
}

type simulatedCallback struct {
	Destination string           `json:"destination"`
	Events      []simulatedEvent `json:"events"`
}

func buildTextWebhook(replyToken string, text string, at time.Time) ([]byte, error) {
	callback := simulatedCallback{
		Destination: "Usimulate",
		Events: []simulatedEvent{{
			Type:            "message",
			Mode:            "active",
			Timestamp:       at.UnixMilli(),
			WebhookEventID:  uuid.NewString(),
			DeliveryContext: map[string]bool{"isRedelivery": false},
			Source:          simulatedSource{Type: "user", UserID: "Usimulate"},
			ReplyToken:      replyToken,
			Message: simulatedMessage{
				Type:       "text",
				ID:         fmt.Sprintf("%d", at.UnixNano()),
				QuoteToken: uuid.NewString(),
				Text:       text,
			},
		}},
	}

	body, err := json.Marshal(callback)
	if err != nil {
		return nil, fmt.Errorf("encode webhook: %w", err)
	}

	return body, nil
}

func postWebhook(target string, body []byte, signature string) (int, error) {
	req, err := http.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(line.SignatureHeader, signature)

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}

func renderSimulation(t theme, target string, replyToken string, text string, status int) string {
	badge := t.ok.Render(fmt.Sprintf("%d %s", status, http.StatusText(status)))
	if status != http.StatusOK {
		badge = t.failed.Render(fmt.Sprintf("%d %s", status, http.StatusText(status)))
	}

	rows := []string{
		t.title.Render("lineecho simulate"),
		row(t, "url", target),
		row(t, "reply token", replyToken),
		row(t, "text", text),
		t.label.Render("status       ") + badge,
	}

	return t.box.Render(strings.Join(rows, "\n"))
}

func row(t theme, label string, value string) string {
	return t.label.Render(fmt.Sprintf("%-13s", label)) + t.value.Render(value)
}
