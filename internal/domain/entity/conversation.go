package entity

import (
	"sort"
	"time"
)

type Conversation struct {
	ID              string    `json:"id" firestore:"-"`
	Participants    []string  `json:"participants" firestore:"participants"`
	LastMessage     string    `json:"last_message" firestore:"lastMessage"`
	LastMessageTime time.Time `json:"last_message_time" firestore:"lastMessageTime"`
	CreatedAt       time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt       time.Time `json:"updated_at" firestore:"updatedAt"`
}

// Peer returns the participant that is not userID.
func (c *Conversation) Peer(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	return &cp
}

// SortConversations orders most recently updated first.
func SortConversations(conversations []*Conversation) {
	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
	})
}
