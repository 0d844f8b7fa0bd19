package channel

import (
	"context"
	"net/http"

	"lineecho/pkg/bus"
)

// Handler maps one inbound channel message to the reply that should be sent for it.
type Handler func(context.Context, bus.InboundMessage) (bus.OutboundMessage, error)

// Adapter bridges one external messaging platform's webhook into lineecho.
type Adapter interface {
	Name() string
	// Path is the URL path the platform posts webhooks to.
	Path() string
	// Webhook returns the HTTP handler serving Path, dispatching events through handler.
	Webhook(handler Handler) http.Handler
}
