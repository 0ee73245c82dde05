// Package classify implements LLM-backed batch classification of emails
// into user-defined categories.
package classify

import (
	"context"
	"unicode/utf8"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"
	"inbox_server/pkg/logger"
)

const (
	// DefaultBatchSize is the number of emails per classifier call.
	DefaultBatchSize = 20

	// maxBodyChars caps body text handed to the classifier per email.
	maxBodyChars = 1000
)

// Outcome is the final classification decision for one email. Exactly one
// outcome is produced per input email, no matter what the classifier returns.
type Outcome struct {
	EmailID    int64
	CategoryID *int64
	Summary    string
}

// Service batches emails through a ClassifierPort and reconciles the
// responses. Positions within a batch are transient: each call builds a
// fresh 1..N mapping and discards it once outcomes are produced.
type Service struct {
	classifier out.ClassifierPort
	batchSize  int
}

func NewService(classifier out.ClassifierPort, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Service{
		classifier: classifier,
		batchSize:  batchSize,
	}
}

// ClassifyEmails classifies the given emails against the user's categories.
// Classifier failures degrade to fallback outcomes; this method never fails
// the caller.
func (s *Service) ClassifyEmails(ctx context.Context, emails []*domain.Email, categories []domain.Category) []Outcome {
	outcomes := make([]Outcome, 0, len(emails))
	for start := 0; start < len(emails); start += s.batchSize {
		end := start + s.batchSize
		if end > len(emails) {
			end = len(emails)
		}
		outcomes = append(outcomes, s.classifyBatch(ctx, emails[start:end], categories)...)
	}
	return outcomes
}

func (s *Service) classifyBatch(ctx context.Context, batch []*domain.Email, categories []domain.Category) []Outcome {
	if s.classifier == nil {
		return s.fallbackBatch(batch)
	}

	items := make([]out.ClassifyItem, len(batch))
	for i, email := range batch {
		items[i] = out.ClassifyItem{
			Subject:     email.Subject,
			SenderName:  email.SenderName,
			SenderEmail: email.SenderEmail,
			Body:        truncateBody(email.BodyText),
		}
	}

	validIDs := make(map[int64]struct{}, len(categories))
	for _, c := range categories {
		validIDs[c.ID] = struct{}{}
	}

	results, err := s.classifier.ClassifyBatch(ctx, items, categories)
	if err != nil {
		logger.Warn("[ClassifyService] batch of %d failed, using fallbacks: %v", len(batch), err)
		return s.fallbackBatch(batch)
	}

	// Index -> result, positions are 1-based within this batch only.
	byIndex := make(map[int]out.ClassifyResult, len(results))
	for _, r := range results {
		if r.Index < 1 || r.Index > len(batch) {
			logger.Warn("[ClassifyService] dropping result with unknown index %d (batch size %d)", r.Index, len(batch))
			continue
		}
		byIndex[r.Index] = r
	}

	outcomes := make([]Outcome, len(batch))
	for i, email := range batch {
		r, ok := byIndex[i+1]
		if !ok {
			outcomes[i] = fallbackOutcome(email)
			continue
		}
		o := Outcome{EmailID: email.ID, Summary: r.Summary}
		if r.CategoryID != nil {
			if _, valid := validIDs[*r.CategoryID]; valid {
				o.CategoryID = r.CategoryID
			} else {
				logger.Warn("[ClassifyService] email %d: invalid category %d coerced to uncategorized", email.ID, *r.CategoryID)
			}
		}
		if o.Summary == "" {
			o.Summary = fallbackSummary(email)
		}
		outcomes[i] = o
	}
	return outcomes
}

func (s *Service) fallbackBatch(batch []*domain.Email) []Outcome {
	outcomes := make([]Outcome, len(batch))
	for i, email := range batch {
		outcomes[i] = fallbackOutcome(email)
	}
	return outcomes
}

func fallbackOutcome(email *domain.Email) Outcome {
	return Outcome{
		EmailID: email.ID,
		Summary: fallbackSummary(email),
	}
}

func fallbackSummary(email *domain.Email) string {
	return "Email from " + email.Sender()
}

// truncateBody caps the text at maxBodyChars bytes without splitting a rune.
func truncateBody(body string) string {
	if len(body) <= maxBodyChars {
		return body
	}
	cut := maxBodyChars
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return body[:cut]
}
