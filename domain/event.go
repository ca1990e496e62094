package domain

import "time"

// InboundEvent is anything the transport delivers for a user.
type InboundEvent interface {
	User() UserID
	Chat() ChatID
}

type FileReceived struct {
	File     FileRef
	ChatID   ChatID
	SenderID UserID `validate:"required"`
	At       time.Time
}

func (e FileReceived) User() UserID { return e.SenderID }
func (e FileReceived) Chat() ChatID { return e.ChatID }

type TextReceived struct {
	Text     string
	ChatID   ChatID
	SenderID UserID
	At       time.Time
}

func (e TextReceived) User() UserID { return e.SenderID }
func (e TextReceived) Chat() ChatID { return e.ChatID }

type CancelRequested struct {
	ChatID   ChatID
	SenderID UserID
}

func (e CancelRequested) User() UserID { return e.SenderID }
func (e CancelRequested) Chat() ChatID { return e.ChatID }
