package model

import "time"

// ChatMessage — эфемерное сообщение чата живой сессии; живёт только в буфере
// истории сигнального сервера. UserID пустой для анонимных зрителей.
type ChatMessage struct {
	ExhibitionID string    `json:"exhibition_id"`
	UserID       string    `json:"user_id,omitempty"`
	DisplayName  string    `json:"display_name"`
	Avatar       string    `json:"avatar,omitempty"`
	Message      string    `json:"message"`
	Role         Role      `json:"role"`
	SentAt       time.Time `json:"sent_at"`
}
