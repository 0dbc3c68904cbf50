// Package realtime pushes events to connected users and decides, per
// message, whether the receiver got it live or has to pick it up later.
package realtime

//go:generate mockgen -source=presence.go -destination=mocks/mock_presence.go -package=mocks

import "github.com/google/uuid"

// Event names sent to clients.
const (
	EventNewMessage = "newMessage"
)

// Presence is the view of the push channel the pipelines depend on. Push is
// fire and forget.
type Presence interface {
	IsConnected(userID uuid.UUID) bool
	Push(userID uuid.UUID, event string, payload any)
}

// Outcome records what happened to a message for its receiver.
type Outcome int

const (
	// Delivered means the receiver had a live connection and was pushed the
	// message.
	Delivered Outcome = iota + 1
	// Queued means the receiver was offline; the caller owes them an unread
	// increment.
	Queued
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Queued:
		return "queued"
	default:
		return "unknown"
	}
}

// Deliver echoes the payload to the sender's other sessions and pushes it to
// the receiver when they are online.
func Deliver(p Presence, senderID, receiverID uuid.UUID, event string, payload any) Outcome {
	if p.IsConnected(senderID) {
		p.Push(senderID, event, payload)
	}
	if p.IsConnected(receiverID) {
		p.Push(receiverID, event, payload)
		return Delivered
	}
	return Queued
}
