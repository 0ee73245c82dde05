package out

import (
	"context"

	"inbox_server/core/domain"
)

// ClassifierPort defines the outbound port for LLM-backed email classification.
type ClassifierPort interface {
	// ClassifyBatch sends one prompt covering all items and returns the
	// parsed results. Result indices refer to 1-based positions within
	// the submitted batch; callers must treat the output as unordered and
	// possibly incomplete.
	ClassifyBatch(ctx context.Context, items []ClassifyItem, categories []domain.Category) ([]ClassifyResult, error)
}

// ClassifyItem is one email presented to the classifier.
type ClassifyItem struct {
	Subject     string
	SenderName  string
	SenderEmail string
	Body        string
}

// ClassifyResult is the classifier's verdict for one batch position.
type ClassifyResult struct {
	Index      int
	CategoryID *int64
	Summary    string
}
