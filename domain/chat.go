package domain

import (
	"github.com/google/uuid"
	"github.com/samber/lo"
)

// ChatMessage is a stored chat entry. An empty Recipients list means the
// message was broadcast to the whole meeting.
type ChatMessage struct {
	ID          uuid.UUID `json:"id"`
	Sender      string    `json:"sender"`
	Message     string    `json:"message"`
	Recipients  []string  `json:"recipients,omitempty"`
	TimestampMs int64     `json:"timestamp_ms"`
}

// VisibleTo reports whether a participant is allowed to see the message.
// Broadcasts are visible to everyone; targeted messages only to the sender
// and the listed recipients.
func (m ChatMessage) VisibleTo(username string) bool {
	if len(m.Recipients) == 0 {
		return true
	}
	if m.Sender == username {
		return true
	}
	return lo.Contains(m.Recipients, username)
}

// FileOffer announces a file available for download. Only the announcement
// travels through the control plane; chunk transfer is handled elsewhere.
type FileOffer struct {
	FileID    string `json:"file_id"`
	Filename  string `json:"filename"`
	TotalSize int64  `json:"total_size"`
	Uploader  string `json:"uploader"`
}
