package entity

import (
	"time"
)

const (
	UserStatusOnline  = "online"
	UserStatusOffline = "offline"
	UserStatusAway    = "away"
)

func ValidUserStatus(status string) bool {
	switch status {
	case UserStatusOnline, UserStatusOffline, UserStatusAway:
		return true
	}
	return false
}

type User struct {
	ID           string    `json:"id" firestore:"id"`
	Name         string    `json:"name" firestore:"name"`
	Email        string    `json:"email" firestore:"email"`
	PasswordHash string    `json:"-" firestore:"passwordHash"`
	Status       string    `json:"status" firestore:"status"`
	CreatedAt    time.Time `json:"created_at" firestore:"createdAt"`
	UpdatedAt    time.Time `json:"updated_at" firestore:"updatedAt"`
}
