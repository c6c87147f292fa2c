package models

import "time"

// AIQuery is a logged assistant exchange.
type AIQuery struct {
	ID        string    `db:"id" json:"id"`
	UserID    *string   `db:"user_id" json:"user_id,omitempty"`
	Query     string    `db:"query" json:"query"`
	Response  string    `db:"response" json:"response"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ChatMessage is one turn in an assistant conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
