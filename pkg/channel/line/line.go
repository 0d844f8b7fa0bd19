package line

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"lineecho/pkg/bus"
	"lineecho/pkg/channel"
	"lineecho/pkg/config"
)

const (
	channelName         = "line"
	messagePreviewLimit = 240

	// SignatureHeader carries the base64 HMAC-SHA256 of the raw body.
	SignatureHeader = "X-Line-Signature"
)

// Adapter serves the LINE webhook callback and replies to each event once.
type Adapter struct {
	cfg          config.LineConfig
	maxBodyBytes int64
	replier      Replier
	events       *bus.EventBus
	log          *slog.Logger
}

// NewAdapter validates LINE configuration and constructs an adapter instance.
// events may be nil.
func NewAdapter(cfg config.LineConfig, maxBodyBytes int64, replier Replier, events *bus.EventBus, log *slog.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.ChannelSecret) == "" {
		return nil, errors.New("line.channel_secret is required")
	}
	if replier == nil {
		return nil, errors.New("replier is required")
	}
	if strings.TrimSpace(cfg.CallbackPath) == "" {
		cfg.CallbackPath = config.DefaultCallbackPath
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = config.DefaultMaxBodyBytes
	}
	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:          cfg,
		maxBodyBytes: maxBodyBytes,
		replier:      replier,
		events:       events,
		log:          log.With("component", "channel.line"),
	}, nil
}

// Name returns the channel identifier used in bus metadata and logs.
func (a *Adapter) Name() string {
	return channelName
}

// Path returns the callback path the LINE platform posts to.
func (a *Adapter) Path() string {
	return a.cfg.CallbackPath
}

// Webhook returns the callback handler. Every response has an empty body;
// the status alone reports the outcome.
func (a *Adapter) Webhook(handler channel.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		log := a.log.With("request_id", requestID)

		err := a.handle(w, r, handler, requestID, log)
		status := StatusFromError(err)
		switch {
		case err == nil:
		case status == http.StatusForbidden:
			log.Warn("Rejected webhook", "status", status, "error", err)
		case status >= http.StatusInternalServerError:
			log.Error("Webhook failed", "status", status, "error", err)
		default:
			log.Warn("Webhook failed", "status", status, "error", err)
		}

		w.WriteHeader(status)
	})
}

func (a *Adapter) handle(w http.ResponseWriter, r *http.Request, handler channel.Handler, requestID string, log *slog.Logger) error {
	if r.Method != http.MethodPost {
		return NewError(ErrorMethodNotAllowed, r.Method)
	}
	if handler == nil {
		return errors.New("handler is required")
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.maxBodyBytes))
	if err != nil {
		return WrapError(ErrorInvalidPayload, "read body", err)
	}

	if !webhook.ValidateSignature(a.cfg.ChannelSecret, r.Header.Get(SignatureHeader), body) {
		a.publish(r.Context(), bus.Event{Type: bus.EventSignatureRejected, RequestID: requestID})
		return NewError(ErrorSignatureInvalid, "")
	}

	var callback webhook.CallbackRequest
	if err := json.Unmarshal(body, &callback); err != nil {
		return WrapError(ErrorInvalidPayload, "decode callback", err)
	}

	log.Debug("Received webhook", "destination", callback.Destination, "events", len(callback.Events))
	a.publish(r.Context(), bus.Event{
		Type:      bus.EventWebhookReceived,
		RequestID: requestID,
		Payload:   map[string]string{"events": strconv.Itoa(len(callback.Events))},
	})

	for _, event := range callback.Events {
		if err := a.dispatch(r.Context(), event, handler, requestID, log); err != nil {
			return err
		}
	}

	return nil
}

// dispatch sends exactly one reply for a repliable event. A send failure stops
// the remaining events of the request.
func (a *Adapter) dispatch(ctx context.Context, event webhook.EventInterface, handler channel.Handler, requestID string, log *slog.Logger) error {
	inbound, ok := toInbound(event)
	if !ok {
		log.Info("Skipping event that carries no reply token", "event_type", eventType(event))
		return nil
	}

	log.Info("Received event", "event_type", inbound.EventType, "message_type", inbound.MessageType, "sender_id", inbound.SenderID, "content", previewText(inbound.Content))

	outbound, err := handler(ctx, inbound)
	if err != nil {
		return fmt.Errorf("handle %s event: %w", inbound.EventType, err)
	}

	if err := a.replier.Reply(ctx, outbound.ReplyToken, outbound.Content); err != nil {
		a.publish(ctx, bus.Event{Type: bus.EventReplyFailed, RequestID: requestID, EventType: inbound.EventType, Error: err.Error()})
		return WrapError(ErrorSendFailure, inbound.EventType, err)
	}

	log.Info("Sent reply", "event_type", inbound.EventType, "content", previewText(outbound.Content))
	a.publish(ctx, bus.Event{Type: bus.EventReplySent, RequestID: requestID, EventType: inbound.EventType})

	return nil
}

func (a *Adapter) publish(ctx context.Context, event bus.Event) {
	if a.events == nil {
		return
	}

	event.Channel = channelName
	a.events.PublishEvent(ctx, event)
}

// toInbound normalizes a webhook event. It reports false for events that carry
// no reply token (unfollow, leave, unsend and the like), which cannot be answered.
func toInbound(event webhook.EventInterface) (bus.InboundMessage, bool) {
	inbound := bus.InboundMessage{
		Channel:   channelName,
		Kind:      bus.KindUnsupported,
		EventType: eventType(event),
	}

	switch e := event.(type) {
	case webhook.MessageEvent:
		inbound.ReplyToken = e.ReplyToken
		inbound.SenderID = senderID(e.Source)
		if e.Message != nil {
			inbound.MessageType = e.Message.GetType()
		}
		if text, ok := e.Message.(webhook.TextMessageContent); ok {
			inbound.Kind = bus.KindText
			inbound.Content = text.Text
		}
	case webhook.FollowEvent:
		inbound.ReplyToken = e.ReplyToken
		inbound.SenderID = senderID(e.Source)
	case webhook.JoinEvent:
		inbound.ReplyToken = e.ReplyToken
	case webhook.MemberJoinedEvent:
		inbound.ReplyToken = e.ReplyToken
	case webhook.PostbackEvent:
		inbound.ReplyToken = e.ReplyToken
		inbound.SenderID = senderID(e.Source)
	case webhook.BeaconEvent:
		inbound.ReplyToken = e.ReplyToken
		inbound.SenderID = senderID(e.Source)
	case webhook.AccountLinkEvent:
		inbound.ReplyToken = e.ReplyToken
		inbound.SenderID = senderID(e.Source)
	case webhook.ThingsEvent:
		inbound.ReplyToken = e.ReplyToken
		inbound.SenderID = senderID(e.Source)
	case webhook.VideoPlayCompleteEvent:
		inbound.ReplyToken = e.ReplyToken
		inbound.SenderID = senderID(e.Source)
	case webhook.UnknownEvent:
		// Event types newer than the SDK still get the fallback when they carry a token.
		if raw, ok := e.Raw["replyToken"]; ok {
			_ = json.Unmarshal(raw, &inbound.ReplyToken)
		}
	}

	if strings.TrimSpace(inbound.ReplyToken) == "" {
		return bus.InboundMessage{}, false
	}

	return inbound, true
}

func eventType(event webhook.EventInterface) string {
	if event == nil {
		return ""
	}
	return event.GetType()
}

func senderID(source webhook.SourceInterface) string {
	if user, ok := source.(webhook.UserSource); ok {
		return user.UserId
	}
	return ""
}

// Sign computes the X-Line-Signature value for body under channelSecret.
func Sign(channelSecret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(channelSecret))
	_, _ = mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}
