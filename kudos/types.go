package kudos

import (
	"strings"
	"time"
)

// User is a teammate as exposed by the GraphQL schema.
type User struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl"`
}

// Kudos is one recognition message.
type Kudos struct {
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Message    string `json:"message"`
	Amount     int    `json:"amount"`
	CreatedAt  string `json:"createdAt"`
	UpdatedAt  string `json:"updatedAt"`
	Sender     *User  `json:"sender"`
	Receiver   *User  `json:"receiver"`
}

// Created parses CreatedAt. Timestamps without a zone are UTC.
func (k Kudos) Created() (time.Time, error) {
	return parseTimestamp(k.CreatedAt)
}

// SenderName returns the sender's display name, falling back to the id.
func (k Kudos) SenderName() string {
	if k.Sender != nil && k.Sender.Name != "" {
		return k.Sender.Name
	}
	return k.SenderID
}

// ReceiverName returns the receiver's display name, falling back to the id.
func (k Kudos) ReceiverName() string {
	if k.Receiver != nil && k.Receiver.Name != "" {
		return k.Receiver.Name
	}
	return k.ReceiverID
}

// SendInput is a kudos to send from the logged-in user.
type SendInput struct {
	ReceiverID string `validate:"required"`
	Message    string `validate:"required,max=1000"`
	// Amount defaults to 1.
	Amount int `validate:"gte=1"`
}

// Reaction is the state of one emoji on a kudos after a toggle.
type Reaction struct {
	KudosID      string `json:"kudosId"`
	ReactionType string `json:"reactionType"`
	Count        int    `json:"count"`
	UserReacted  bool   `json:"userReacted"`
}

// Reactions lists the emoji a kudos can be reacted with.
var Reactions = []string{"👍", "❤️", "🎉", "🙌", "🔥", "👏"}

// ValidReaction reports whether emoji is in Reactions.
func ValidReaction(emoji string) bool {
	for _, r := range Reactions {
		if r == emoji {
			return true
		}
	}
	return false
}

// Dashboard is what the feed page shows at once.
type Dashboard struct {
	Users    []User
	Feed     []Kudos
	Received []Kudos
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var err error
	for _, layout := range timestampLayouts {
		var t time.Time
		if t, err = time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
