package model

// Update is one inbound event from the messaging transport. Exactly one of
// Message and Callback is set for updates the bot handles.
type Update struct {
	ID       int64
	Message  *Message
	Callback *Callback
}

type Message struct {
	From   Identity
	ChatID int64
	Text   string
}

// Callback is a button press. From is nil and ChatID is zero when the
// transport did not attach them.
type Callback struct {
	ID     string
	From   *Identity
	ChatID int64
	Data   string
}

func (u Update) Kind() string {
	switch {
	case u.Message != nil:
		return "message"
	case u.Callback != nil:
		return "callback"
	default:
		return "other"
	}
}
