// internal/model/call_history.go
package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CallStatus string

const (
	CallStatusCompleted CallStatus = "COMPLETED"
	CallStatusRejected  CallStatus = "REJECTED"
	CallStatusMissed    CallStatus = "MISSED"
)

// CallHistory is written once per call, when it leaves the in-memory
// ledger. No row ever represents a call in progress.
type CallHistory struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	RoomID          string     `gorm:"size:64;not null;index" json:"roomId"`
	CallerID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"callerId"`
	CalleeID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"calleeId"`
	Status          CallStatus `gorm:"type:varchar(20);not null" json:"status"`
	StartedAt       time.Time  `json:"startedAt"`
	AnsweredAt      *time.Time `json:"answeredAt,omitempty"`
	EndedAt         time.Time  `json:"endedAt"`
	DurationSeconds int        `json:"durationSeconds"`
	EndedBy         uuid.UUID  `gorm:"type:uuid" json:"endedBy"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func (CallHistory) TableName() string {
	return "call_history"
}

func (ch *CallHistory) BeforeCreate(tx *gorm.DB) error {
	if ch.ID == uuid.Nil {
		ch.ID = uuid.New()
	}
	return nil
}

// CallHistoryResponse is the API shape for a finished call.
type CallHistoryResponse struct {
	ID              string     `json:"id"`
	RoomID          string     `json:"roomId"`
	CallerID        string     `json:"callerId"`
	CalleeID        string     `json:"calleeId"`
	Status          string     `json:"status"`
	StartedAt       time.Time  `json:"startedAt"`
	AnsweredAt      *time.Time `json:"answeredAt,omitempty"`
	EndedAt         time.Time  `json:"endedAt"`
	DurationSeconds int        `json:"durationSeconds"`
	EndedBy         string     `json:"endedBy"`
}

func (ch *CallHistory) ToResponse() CallHistoryResponse {
	return CallHistoryResponse{
		ID:              ch.ID.String(),
		RoomID:          ch.RoomID,
		CallerID:        ch.CallerID.String(),
		CalleeID:        ch.CalleeID.String(),
		Status:          string(ch.Status),
		StartedAt:       ch.StartedAt,
		AnsweredAt:      ch.AnsweredAt,
		EndedAt:         ch.EndedAt,
		DurationSeconds: ch.DurationSeconds,
		EndedBy:         ch.EndedBy.String(),
	}
}
