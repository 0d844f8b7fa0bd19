// Package echo decides the reply for each inbound chat event.
package echo

import (
	"context"

	"lineecho/pkg/bus"
)

// FallbackText is replied to anything that is not a text message.
const FallbackText = "Currently Not Support None Text Message"

// Reply echoes text messages verbatim and answers every other event with FallbackText.
func Reply(_ context.Context, inbound bus.InboundMessage) (bus.OutboundMessage, error) {
	content := FallbackText
	if inbound.Kind == bus.KindText {
		content = inbound.Content
	}

	return bus.OutboundMessage{
		Channel:    inbound.Channel,
		ReplyToken: inbound.ReplyToken,
		Content:    content,
	}, nil
}
