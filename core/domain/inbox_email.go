package domain

import "time"

// Email is a message imported from a connected account. The pair
// (AccountID, MessageID) is unique; it is how re-imports are detected.
// Bodies live in the body store and are attached on demand.
type Email struct {
	ID        int64  `json:"id"`
	AccountID int64  `json:"account_id"`
	MessageID string `json:"message_id"`
	ThreadID  string `json:"thread_id,omitempty"`

	Subject     string    `json:"subject"`
	SenderName  string    `json:"sender_name,omitempty"`
	SenderEmail string    `json:"sender_email"`
	ReceivedAt  time.Time `json:"received_at"`

	// Classification output
	CategoryID *int64  `json:"category_id,omitempty"`
	Summary    *string `json:"summary,omitempty"`

	Labels []string `json:"labels,omitempty"`
	IsRead bool     `json:"is_read"`

	// Bodies, populated from the body store when requested
	BodyText string `json:"body_text,omitempty"`
	BodyHTML string `json:"body_html,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Sender returns a display string for the email sender.
func (e *Email) Sender() string {
	if e.SenderName != "" {
		return e.SenderName
	}
	return e.SenderEmail
}
