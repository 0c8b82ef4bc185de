package core

// EventKind classifies an inbound chat event.
type EventKind int

const (
	EventCommand EventKind = iota
	EventText
	EventLocation
	EventCallback
)

// Event is one inbound chat event, already stripped of transport details.
type Event struct {
	ChatID    int64
	MessageID int
	Kind      EventKind

	Command string // EventCommand: command name without the slash
	Text    string // EventText: message text

	Latitude  float64 // EventLocation
	Longitude float64

	CallbackID   string // EventCallback: id to acknowledge
	CallbackData string // EventCallback: round-tripped button payload
}

// Button is one inline keyboard button.
type Button struct {
	Label string
	Data  string
}

// Responder delivers outbound messages to a chat. Implemented by the
// telegram adapter; message ids are returned so follow-ups can edit or
// delete previously sent messages.
type Responder interface {
	SendText(chatID int64, text string) (int, error)
	SendButtons(chatID int64, text string, buttons []Button) (int, error)
	SendMenu(chatID int64, text string) (int, error)
	SendPhotoURL(chatID int64, url, caption string, buttons []Button) (int, error)
	SendPhotoBytes(chatID int64, name string, data []byte, caption string) (int, error)
	EditText(chatID int64, messageID int, text string, buttons []Button) error
	EditCaption(chatID int64, messageID int, caption string) error
	DeleteMessage(chatID int64, messageID int) error
	AnswerCallback(callbackID string) error
}

type DialogueService interface {
	Handle(event Event)
}
