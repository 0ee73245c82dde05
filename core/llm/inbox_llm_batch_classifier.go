package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"
)

// BatchClassifier implements the classifier port on top of the chat client.
// One prompt covers the whole batch; emails are numbered 1..N and the model
// answers with a JSON array referencing those numbers.
type BatchClassifier struct {
	client *Client
}

func NewBatchClassifier(client *Client) *BatchClassifier {
	return &BatchClassifier{client: client}
}

var _ out.ClassifierPort = (*BatchClassifier)(nil)

const classifySystemPrompt = `You are an email organization assistant. You receive a numbered list of emails and classify each one into the user's categories, plus write a one-sentence summary.

Respond with a JSON array only, no prose. One element per email:
[{"index": <email number>, "category_id": <category id or null>, "summary": "<one sentence>"}]

Use null for category_id when no category fits.`

const summarizeSystemPrompt = `You are an email organization assistant. You receive a numbered list of emails and write a one-sentence summary for each.

Respond with a JSON array only, no prose. One element per email:
[{"index": <email number>, "category_id": null, "summary": "<one sentence>"}]`

func (b *BatchClassifier) ClassifyBatch(ctx context.Context, items []out.ClassifyItem, categories []domain.Category) ([]out.ClassifyResult, error) {
	if len(items) == 0 {
		return nil, nil
	}

	systemPrompt := classifySystemPrompt
	if len(categories) == 0 {
		// Summary-only mode: no category table, nothing to pick from.
		systemPrompt = summarizeSystemPrompt
	}

	resp, err := b.client.CompleteWithSystem(ctx, systemPrompt, buildBatchPrompt(items, categories))
	if err != nil {
		return nil, fmt.Errorf("classify batch of %d: %w", len(items), err)
	}
	return parseBatchResponse(resp)
}

// buildBatchPrompt renders the category table and the numbered email list.
func buildBatchPrompt(items []out.ClassifyItem, categories []domain.Category) string {
	var sb strings.Builder

	if len(categories) > 0 {
		sb.WriteString("Categories:\n")
		for _, c := range categories {
			if c.Description != "" {
				fmt.Fprintf(&sb, "- %d: %s (%s)\n", c.ID, c.Name, c.Description)
			} else {
				fmt.Fprintf(&sb, "- %d: %s\n", c.ID, c.Name)
			}
		}
		sb.WriteString("\n")
	}

	for i, item := range items {
		fmt.Fprintf(&sb, "---EMAIL %d---\n", i+1)
		sender := item.SenderEmail
		if item.SenderName != "" {
			sender = fmt.Sprintf("%s <%s>", item.SenderName, item.SenderEmail)
		}
		fmt.Fprintf(&sb, "From: %s\n", sender)
		fmt.Fprintf(&sb, "Subject: %s\n", item.Subject)
		if item.Body != "" {
			fmt.Fprintf(&sb, "Body: %s\n", item.Body)
		}
	}
	return sb.String()
}

// parseBatchResponse decodes the model output, tolerating markdown fences
// and a wrapping object around the array.
func parseBatchResponse(resp string) ([]out.ClassifyResult, error) {
	cleaned := strings.TrimSpace(resp)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var entries []batchEntry
	if err := json.Unmarshal([]byte(cleaned), &entries); err != nil {
		// Some models insist on {"results": [...]}.
		var wrapped struct {
			Results []batchEntry `json:"results"`
		}
		if err2 := json.Unmarshal([]byte(cleaned), &wrapped); err2 != nil || wrapped.Results == nil {
			return nil, fmt.Errorf("parse classification response: %w", err)
		}
		entries = wrapped.Results
	}

	results := make([]out.ClassifyResult, 0, len(entries))
	for _, e := range entries {
		results = append(results, out.ClassifyResult{
			Index:      e.Index,
			CategoryID: e.CategoryID,
			Summary:    strings.TrimSpace(e.Summary),
		})
	}
	return results, nil
}

type batchEntry struct {
	Index      int     `json:"index"`
	CategoryID *int64  `json:"category_id"`
	Summary    string  `json:"summary"`
}
