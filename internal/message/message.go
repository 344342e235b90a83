// Package message defines the canonical message shapes that cross the
// channel boundary: NormalizedMessage inbound, OutgoingMessage outbound.
package message

// Attachment describes a file attached to an inbound or outbound message.
type Attachment struct {
	// Filename is the attachment's original filename, if known.
	Filename string `json:"filename,omitempty"`

	// MimeType is the attachment's declared content type.
	MimeType string `json:"mimeType,omitempty"`

	// URL is a platform-local reference to the attachment content
	// (a file path, a platform CDN URL, or a data URI), not raw bytes.
	URL string `json:"url,omitempty"`

	// Summary is a human-readable description computed from the
	// attachment content (e.g. a vcard contact summary line).
	Summary string `json:"summary,omitempty"`
}

// NormalizedMessage is the canonical inbound message shape every Channel
// produces. It is immutable after creation.
type NormalizedMessage struct {
	// ID is a globally unique identifier minted by the channel or the
	// channel manager.
	ID string `json:"id"`

	// ChannelID identifies the channel that received this message.
	ChannelID string `json:"channelId"`

	// ConversationID is platform-scoped: unique within ChannelID, not
	// necessarily globally.
	ConversationID string `json:"conversationId"`

	// SenderID identifies the message's author within the platform.
	SenderID string `json:"senderId"`

	// Text is the message body.
	Text string `json:"text"`

	// TimestampMS is the epoch-millisecond time the message was sent
	// or received.
	TimestampMS int64 `json:"timestamp"`

	// SenderName is a display name for SenderID, when the platform
	// supplies one.
	SenderName string `json:"senderName,omitempty"`

	// PlatformMessageID is an opaque echo of the platform's own message
	// identifier, used to thread outbound replies.
	PlatformMessageID string `json:"platformMessageId,omitempty"`

	// Attachments lists any files carried with the message.
	Attachments []Attachment `json:"attachments,omitempty"`
}

// OutgoingMessage is the canonical outbound message shape the pipeline
// hands to a Channel for delivery.
type OutgoingMessage struct {
	// Text is the message body (required).
	Text string `json:"text"`

	// ReplyToMessageID, when set, asks the channel to thread this
	// message as a reply to the given platform message id.
	ReplyToMessageID string `json:"replyToMessageId,omitempty"`

	// Attachments lists any files to send with the message.
	Attachments []Attachment `json:"attachments,omitempty"`
}
