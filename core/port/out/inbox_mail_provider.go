// Package out defines outbound ports (driven ports) for the application.
// These interfaces represent dependencies that the application needs.
package out

import (
	"context"
	"time"

	"golang.org/x/oauth2"
)

// =============================================================================
// Mail Provider Port (Gmail)
// =============================================================================

// MailProviderPort defines the outbound port for the external mail provider.
type MailProviderPort interface {
	// OAuth
	GetAuthURL(state string) string
	ExchangeToken(ctx context.Context, code string) (*oauth2.Token, error)
	RefreshToken(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error)

	// Profile
	GetProfile(ctx context.Context, token *oauth2.Token) (*ProviderProfile, error)

	// Messages
	ListMessageIDs(ctx context.Context, token *oauth2.Token, query string, maxResults int64) ([]string, error)
	GetMessage(ctx context.Context, token *oauth2.Token, externalID string) (*ProviderMessage, error)
	Archive(ctx context.Context, token *oauth2.Token, externalID string) error
	Trash(ctx context.Context, token *oauth2.Token, externalID string) error

	// Push notifications
	Watch(ctx context.Context, token *oauth2.Token, topic string) (*ProviderWatchResponse, error)
	StopWatch(ctx context.Context, token *oauth2.Token) error

	// ChangesSince lists message IDs added to the inbox after the given
	// history cursor. A stale or expired cursor yields an empty slice and
	// a fresh cursor, never an error.
	ChangesSince(ctx context.Context, token *oauth2.Token, historyID string) ([]string, string, error)
}

// =============================================================================
// Provider Types
// =============================================================================

// ProviderProfile represents the mailbox owner's profile.
type ProviderProfile struct {
	Email     string
	HistoryID uint64
}

// ProviderMessage represents a fetched mail message.
type ProviderMessage struct {
	ExternalID string
	ThreadID   string
	Subject    string
	Snippet    string
	From       ProviderAddress
	ReceivedAt time.Time
	IsRead     bool
	Labels     []string
	BodyText   string
	BodyHTML   string
}

// ProviderAddress represents a parsed From header.
type ProviderAddress struct {
	Name  string
	Email string
}

// ProviderWatchResponse represents a push notification subscription.
type ProviderWatchResponse struct {
	HistoryID  string
	Expiration time.Time
}

// =============================================================================
// Provider Error
// =============================================================================

// ProviderErrorCode represents error codes.
type ProviderErrorCode string

const (
	ProviderErrAuth         ProviderErrorCode = "auth_error"
	ProviderErrTokenExpired ProviderErrorCode = "token_expired"
	ProviderErrRateLimit    ProviderErrorCode = "rate_limit"
	ProviderErrNotFound     ProviderErrorCode = "not_found"
	ProviderErrNetwork      ProviderErrorCode = "network_error"
	ProviderErrServer       ProviderErrorCode = "server_error"
	ProviderErrInvalidInput ProviderErrorCode = "invalid_input"
)

// ProviderError represents a provider error.
type ProviderError struct {
	Provider  string
	Code      ProviderErrorCode
	Message   string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new provider error.
func NewProviderError(provider string, code ProviderErrorCode, message string, err error, retryable bool) *ProviderError {
	return &ProviderError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Err:       err,
		Retryable: retryable,
	}
}
