package models

import (
	"time"

	"github.com/google/uuid"
)

// MessageKind определяет автора сообщения в сессии.
// Совпадает с типом ENUM 'message_kind' в БД.
type MessageKind string

const (
	MessagePlayer MessageKind = "player"
	MessageGM     MessageKind = "gm"
	MessageSystem MessageKind = "system"
)

// IsValid проверяет, что kind является одним из известных значений.
func (k MessageKind) IsValid() bool {
	return k == MessagePlayer || k == MessageGM || k == MessageSystem
}

// SessionMessage представляет одно сообщение игровой сессии. Сообщения
// append-only; первое сообщение сессии (sequence_number = 1) — это
// вступление гейм-мастера, защищённое идемпотентным инициализатором.
type SessionMessage struct {
	ID             uuid.UUID   `json:"id" db:"id"`
	SessionID      uuid.UUID   `json:"session_id" db:"session_id"`
	SequenceNumber int64       `json:"sequence_number" db:"sequence_number"`
	Kind           MessageKind `json:"kind" db:"kind"`
	Content        string      `json:"content" db:"content"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
}
