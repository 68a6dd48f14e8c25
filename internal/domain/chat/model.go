package chat

import (
	"time"

	"github.com/google/uuid"
)

// ChatSession is the single conversation between one patient and one doctor.
// The store enforces at most one row per (patient_id, doctor_id) pair.
type ChatSession struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctor_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// OtherParticipant returns the session member that is not userID.
func (s *ChatSession) OtherParticipant(userID uuid.UUID) uuid.UUID {
	if s.PatientID == userID {
		return s.DoctorID
	}
	return s.PatientID
}

// HasParticipant reports whether userID is a member of the session.
func (s *ChatSession) HasParticipant(userID uuid.UUID) bool {
	return s.PatientID == userID || s.DoctorID == userID
}

// ChatMessage is one message within a session. Messages are immutable after
// creation except for the read flag.
type ChatMessage struct {
	ID        uuid.UUID `db:"id" json:"id"`
	SessionID uuid.UUID `db:"session_id" json:"session_id"`
	SenderID  uuid.UUID `db:"sender_id" json:"sender_id"`
	Content   string    `db:"content" json:"content"`
	Read      bool      `db:"read" json:"read"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// EntityID implements the reconciler entity contract.
func (m ChatMessage) EntityID() uuid.UUID { return m.ID }

// Before orders messages by (created_at, id); the id tiebreak keeps the
// order total when timestamps collide.
func (m ChatMessage) Before(other ChatMessage) bool {
	if !m.CreatedAt.Equal(other.CreatedAt) {
		return m.CreatedAt.Before(other.CreatedAt)
	}
	return m.ID.String() < other.ID.String()
}
