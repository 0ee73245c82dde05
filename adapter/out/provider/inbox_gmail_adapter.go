// Package provider implements the Gmail mail provider adapter.
package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"inbox_server/core/port/out"
	"inbox_server/pkg/logger"
)

// =============================================================================
// Gmail Adapter
// =============================================================================

// GmailAdapter implements out.MailProviderPort for Gmail.
type GmailAdapter struct {
	config *oauth2.Config
	cb     *gobreaker.CircuitBreaker
}

// GmailConfig holds Gmail OAuth configuration.
type GmailConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// NewGmailAdapter creates a new Gmail adapter.
func NewGmailAdapter(cfg *GmailConfig) *GmailAdapter {
	config := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes: []string{
			gmail.GmailReadonlyScope,
			gmail.GmailModifyScope,
			gmail.GmailLabelsScope,
		},
		Endpoint: google.Endpoint,
	}

	cbSettings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("[CircuitBreaker] %s: state changed from %s to %s", name, from.String(), to.String())
		},
	}

	return &GmailAdapter{
		config: config,
		cb:     gobreaker.NewCircuitBreaker(cbSettings),
	}
}

var _ out.MailProviderPort = (*GmailAdapter)(nil)

// =============================================================================
// OAuth
// =============================================================================

func (a *GmailAdapter) GetAuthURL(state string) string {
	return a.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (a *GmailAdapter) ExchangeToken(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := a.config.Exchange(ctx, code)
	if err != nil {
		return nil, a.wrapError(err, "failed to exchange token")
	}
	return token, nil
}

func (a *GmailAdapter) RefreshToken(ctx context.Context, token *oauth2.Token) (*oauth2.Token, error) {
	fresh, err := a.config.TokenSource(ctx, token).Token()
	if err != nil {
		return nil, out.NewProviderError("gmail", out.ProviderErrTokenExpired, "failed to refresh token", err, false)
	}
	return fresh, nil
}

// =============================================================================
// Profile
// =============================================================================

func (a *GmailAdapter) GetProfile(ctx context.Context, token *oauth2.Token) (*out.ProviderProfile, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	var profile *gmail.Profile
	cbErr := a.executeWithCircuitBreaker("GetProfile", func() error {
		var apiErr error
		profile, apiErr = svc.Users.GetProfile("me").Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "failed to get profile")
	}

	return &out.ProviderProfile{
		Email:     profile.EmailAddress,
		HistoryID: profile.HistoryId,
	}, nil
}

// =============================================================================
// Messages
// =============================================================================

// ListMessageIDs returns message IDs matching the search query, newest
// first, up to maxResults across pages.
func (a *GmailAdapter) ListMessageIDs(ctx context.Context, token *oauth2.Token, query string, maxResults int64) ([]string, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	var ids []string
	pageToken := ""
	for {
		call := svc.Users.Messages.List("me").Q(query).Context(ctx)
		if remaining := maxResults - int64(len(ids)); remaining < 500 {
			call = call.MaxResults(remaining)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		var resp *gmail.ListMessagesResponse
		cbErr := a.executeWithCircuitBreaker("ListMessageIDs", func() error {
			var apiErr error
			resp, apiErr = call.Do()
			return apiErr
		})
		if cbErr != nil {
			return nil, a.wrapError(cbErr, "failed to list messages")
		}

		for _, m := range resp.Messages {
			ids = append(ids, m.Id)
		}
		if int64(len(ids)) >= maxResults || resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	if int64(len(ids)) > maxResults {
		ids = ids[:maxResults]
	}
	return ids, nil
}

func (a *GmailAdapter) GetMessage(ctx context.Context, token *oauth2.Token, externalID string) (*out.ProviderMessage, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	var msg *gmail.Message
	cbErr := a.executeWithCircuitBreaker("GetMessage", func() error {
		var apiErr error
		msg, apiErr = svc.Users.Messages.Get("me", externalID).Format("full").Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "failed to get message")
	}

	return a.convertMessage(msg), nil
}

// Archive removes the INBOX label.
func (a *GmailAdapter) Archive(ctx context.Context, token *oauth2.Token, externalID string) error {
	return a.modifyLabels(ctx, token, externalID, nil, []string{"INBOX"})
}

func (a *GmailAdapter) Trash(ctx context.Context, token *oauth2.Token, externalID string) error {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return err
	}

	cbErr := a.executeWithCircuitBreaker("Trash", func() error {
		_, apiErr := svc.Users.Messages.Trash("me", externalID).Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return a.wrapError(cbErr, "failed to trash message")
	}
	return nil
}

// =============================================================================
// Push notifications
// =============================================================================

func (a *GmailAdapter) Watch(ctx context.Context, token *oauth2.Token, topic string) (*out.ProviderWatchResponse, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, err
	}

	req := &gmail.WatchRequest{
		TopicName: topic,
		LabelIds:  []string{"INBOX"},
	}

	var resp *gmail.WatchResponse
	cbErr := a.executeWithCircuitBreaker("Watch", func() error {
		var apiErr error
		resp, apiErr = svc.Users.Watch("me", req).Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return nil, a.wrapError(cbErr, "failed to setup watch")
	}

	// Expiration arrives as epoch milliseconds.
	return &out.ProviderWatchResponse{
		HistoryID:  strconv.FormatUint(resp.HistoryId, 10),
		Expiration: time.Unix(0, resp.Expiration*int64(time.Millisecond)).UTC(),
	}, nil
}

func (a *GmailAdapter) StopWatch(ctx context.Context, token *oauth2.Token) error {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return err
	}

	if err := svc.Users.Stop("me").Context(ctx).Do(); err != nil {
		return a.wrapError(err, "failed to stop watch")
	}
	return nil
}

// ChangesSince lists inbox additions after the given history cursor. A
// cursor Gmail no longer recognizes (404) resolves to an empty change set
// with the mailbox's current cursor, so callers can resume cleanly.
func (a *GmailAdapter) ChangesSince(ctx context.Context, token *oauth2.Token, historyID string) ([]string, string, error) {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return nil, "", err
	}

	startID, err := strconv.ParseUint(historyID, 10, 64)
	if err != nil {
		return nil, "", out.NewProviderError("gmail", out.ProviderErrInvalidInput,
			fmt.Sprintf("invalid history cursor %q", historyID), err, false)
	}

	var ids []string
	seen := make(map[string]bool)
	cursor := historyID
	pageToken := ""
	for {
		call := svc.Users.History.List("me").
			StartHistoryId(startID).
			HistoryTypes("messageAdded").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			if apiErr, ok := err.(*googleapi.Error); ok && apiErr.Code == 404 {
				return a.resetCursor(ctx, token)
			}
			return nil, "", a.wrapError(err, "failed to list history")
		}

		for _, history := range resp.History {
			for _, added := range history.MessagesAdded {
				if added.Message == nil || seen[added.Message.Id] {
					continue
				}
				if !hasLabel(added.Message.LabelIds, "INBOX") {
					continue
				}
				seen[added.Message.Id] = true
				ids = append(ids, added.Message.Id)
			}
		}
		if resp.HistoryId > 0 {
			cursor = strconv.FormatUint(resp.HistoryId, 10)
		}
		if resp.NextPageToken == "" {
			break
		}
		pageToken = resp.NextPageToken
	}

	return ids, cursor, nil
}

// resetCursor fetches a fresh cursor after Gmail expired the stored one.
func (a *GmailAdapter) resetCursor(ctx context.Context, token *oauth2.Token) ([]string, string, error) {
	profile, err := a.GetProfile(ctx, token)
	if err != nil {
		return nil, "", err
	}
	logger.Info("[GmailAdapter] history cursor expired, reset to %d", profile.HistoryID)
	return nil, strconv.FormatUint(profile.HistoryID, 10), nil
}

// =============================================================================
// Internals
// =============================================================================

func (a *GmailAdapter) getService(ctx context.Context, token *oauth2.Token) (*gmail.Service, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
	}

	return gmail.NewService(ctx, option.WithTokenSource(
		a.config.TokenSource(ctx, token),
	))
}

func (a *GmailAdapter) modifyLabels(ctx context.Context, token *oauth2.Token, messageID string, addLabels, removeLabels []string) error {
	svc, err := a.getService(ctx, token)
	if err != nil {
		return err
	}

	req := &gmail.ModifyMessageRequest{
		AddLabelIds:    addLabels,
		RemoveLabelIds: removeLabels,
	}

	cbErr := a.executeWithCircuitBreaker("ModifyLabels", func() error {
		_, apiErr := svc.Users.Messages.Modify("me", messageID, req).Context(ctx).Do()
		return apiErr
	})
	if cbErr != nil {
		return a.wrapError(cbErr, "failed to modify labels")
	}
	return nil
}

func (a *GmailAdapter) convertMessage(msg *gmail.Message) *out.ProviderMessage {
	result := &out.ProviderMessage{
		ExternalID: msg.Id,
		ThreadID:   msg.ThreadId,
		Snippet:    msg.Snippet,
		Labels:     msg.LabelIds,
		IsRead:     !hasLabel(msg.LabelIds, "UNREAD"),
	}

	if msg.InternalDate > 0 {
		result.ReceivedAt = time.Unix(0, msg.InternalDate*int64(time.Millisecond)).UTC()
	}

	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "Subject":
				result.Subject = h.Value
			case "From":
				result.From = parseAddress(h.Value)
			case "Date":
				if result.ReceivedAt.IsZero() {
					if t, err := mail.ParseDate(h.Value); err == nil {
						result.ReceivedAt = t.UTC()
					}
				}
			}
		}
		extractBody(msg.Payload, result)
	}
	return result
}

func extractBody(part *gmail.MessagePart, msg *out.ProviderMessage) {
	if part == nil {
		return
	}

	if part.Body != nil && part.Body.Data != "" {
		switch part.MimeType {
		case "text/plain":
			if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
				msg.BodyText = string(data)
			}
		case "text/html":
			if data, err := base64.URLEncoding.DecodeString(part.Body.Data); err == nil {
				msg.BodyHTML = string(data)
			}
		}
	}

	for _, p := range part.Parts {
		extractBody(p, msg)
	}
}

func parseAddress(value string) out.ProviderAddress {
	if addr, err := mail.ParseAddress(value); err == nil {
		return out.ProviderAddress{Name: addr.Name, Email: addr.Address}
	}
	// Malformed From headers happen; keep the raw value as the address.
	return out.ProviderAddress{Email: strings.TrimSpace(value)}
}

func hasLabel(labels []string, label string) bool {
	for _, l := range labels {
		if l == label {
			return true
		}
	}
	return false
}

// executeWithCircuitBreaker wraps an API call with circuit breaker
// protection. Client errors (4xx except 429) bypass the breaker so a bad
// request cannot open the circuit for everyone.
func (a *GmailAdapter) executeWithCircuitBreaker(operation string, fn func() error) error {
	_, err := a.cb.Execute(func() (interface{}, error) {
		if err := fn(); err != nil {
			if apiErr, ok := err.(*googleapi.Error); ok {
				switch apiErr.Code {
				case 500, 502, 503, 429:
					return nil, err
				case 400, 401, 403, 404:
					return nil, &nonCircuitError{err: err}
				}
			}
			return nil, err
		}
		return nil, nil
	})

	if nce, ok := err.(*nonCircuitError); ok {
		return nce.err
	}
	if err != nil {
		logger.Warn("[GmailAdapter] %s failed (breaker %s): %v", operation, a.cb.State().String(), err)
	}
	return err
}

// nonCircuitError wraps errors that should not trip the circuit breaker.
type nonCircuitError struct {
	err error
}

func (e *nonCircuitError) Error() string {
	return e.err.Error()
}

func (a *GmailAdapter) wrapError(err error, defaultMsg string) error {
	if err == nil {
		return nil
	}

	if apiErr, ok := err.(*googleapi.Error); ok {
		switch apiErr.Code {
		case 401:
			return out.NewProviderError("gmail", out.ProviderErrTokenExpired, "Token expired", err, false)
		case 403:
			if strings.Contains(apiErr.Message, "Rate Limit") {
				return out.NewProviderError("gmail", out.ProviderErrRateLimit, "Rate limit exceeded", err, true)
			}
			return out.NewProviderError("gmail", out.ProviderErrAuth, "Access denied", err, false)
		case 404:
			return out.NewProviderError("gmail", out.ProviderErrNotFound, "Not found", err, false)
		case 429:
			return out.NewProviderError("gmail", out.ProviderErrRateLimit, "Too many requests", err, true)
		case 500, 502, 503:
			return out.NewProviderError("gmail", out.ProviderErrServer, "Server error", err, true)
		}
	}

	return out.NewProviderError("gmail", out.ProviderErrServer, defaultMsg, err, true)
}
