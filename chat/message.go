package chat

import "time"

type Sender string

const (
	User Sender = "user"
	Bot  Sender = "bot"
)

type Message struct {
	Text   string
	Sender Sender
	Time   time.Time
}

func UserMessage(text string) Message {
	return Message{Text: text, Sender: User, Time: time.Now()}
}

func BotMessage(text string) Message {
	return Message{Text: text, Sender: Bot, Time: time.Now()}
}

// Fixed texts shown in the transcript.
const (
	TextApology       = "Sorry, something went wrong. Please try again."
	AudioApology      = "Sorry, something went wrong with audio processing."
	MicrophoneApology = "Could not access microphone. Please check permissions."
	RecordingNotice   = "Recording audio..."
	PendingText       = "Typing..."
)
