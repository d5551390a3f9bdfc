package dto

// Outbound payloads produced by the reply formatter and consumed by the
// transport client. They carry no transport-specific types.

type KeyboardKind int

const (
	// InlineKeyboard buttons send callback data.
	InlineKeyboard KeyboardKind = iota
	// ReplyKeyboard buttons send their label as a text message.
	ReplyKeyboard
)

type Button struct {
	Text string
	Data string
}

type Keyboard struct {
	Kind KeyboardKind
	Rows [][]Button
}

type Reply struct {
	ChatID   int64
	Text     string
	Keyboard *Keyboard
}

type CallbackAnswer struct {
	CallbackID string
	Text       string
	Alert      bool
}

// --- Webhook ---

type WebhookResponse struct {
	OK bool `json:"ok"`
}
