// Package transport abstracts the chat front end. The core dispatcher only
// depends on Adapter; the Telegram implementation is the concrete plugin.
package transport

// Update is one inbound chat event.
type Update struct {
	UserID       int64
	ChatID       int64
	Text         string
	CallbackData string
	MessageID    int
}

// Button is one inline-keyboard cell: its label and the callback data sent
// back to the bot when pressed.
type Button struct {
	Label        string
	CallbackData string
}

// Outbound is one response to render back to the user.
type Outbound struct {
	ChatID    int64
	Text      string
	Buttons   [][]Button // rows of buttons
	ParseMode string
	PhotoPNG  []byte // set for image replies (e.g. TOTP enrollment QR)
}

// Adapter is the pluggable chat transport: polling and webhook delivery are
// both just different Adapter implementations.
type Adapter interface {
	// Updates returns a channel of inbound updates. Closed on shutdown.
	Updates() <-chan Update
	// Send delivers one outbound message.
	Send(Outbound) error
	// Close stops the adapter, closing the Updates channel.
	Close() error
}
