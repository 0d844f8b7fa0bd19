package bus

// MessageKind classifies an inbound event by what the handler can do with it.
type MessageKind string

const (
	KindText        MessageKind = "text"
	KindUnsupported MessageKind = "unsupported"
)

// InboundMessage is one repliable platform event normalized by a channel adapter.
type InboundMessage struct {
	Channel     string      `json:"channel"`
	Kind        MessageKind `json:"kind"`
	EventType   string      `json:"event_type"`
	MessageType string      `json:"message_type,omitempty"`
	ReplyToken  string      `json:"reply_token"`
	SenderID    string      `json:"sender_id,omitempty"`
	Content     string      `json:"content"`
}

// OutboundMessage is the single reply sent for one InboundMessage.
type OutboundMessage struct {
	Channel    string `json:"channel"`
	ReplyToken string `json:"reply_token"`
	Content    string `json:"content"`
}
