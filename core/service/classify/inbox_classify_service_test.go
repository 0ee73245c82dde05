package classify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"
)

type fakeClassifier struct {
	results []out.ClassifyResult
	err     error

	calls     int
	gotItems  [][]out.ClassifyItem
	resultsFn func(items []out.ClassifyItem) []out.ClassifyResult
}

func (f *fakeClassifier) ClassifyBatch(_ context.Context, items []out.ClassifyItem, _ []domain.Category) ([]out.ClassifyResult, error) {
	f.calls++
	f.gotItems = append(f.gotItems, items)
	if f.err != nil {
		return nil, f.err
	}
	if f.resultsFn != nil {
		return f.resultsFn(items), nil
	}
	return f.results, nil
}

func id(v int64) *int64 { return &v }

func testEmails(n int) []*domain.Email {
	emails := make([]*domain.Email, n)
	for i := range emails {
		emails[i] = &domain.Email{
			ID:          int64(100 + i),
			Subject:     "subject",
			SenderName:  "Alice",
			SenderEmail: "alice@example.com",
			BodyText:    "hello",
		}
	}
	return emails
}

var testCategories = []domain.Category{
	{ID: 1, Name: "Work"},
	{ID: 2, Name: "Newsletters"},
}

func TestClassifyEmailsExactlyOneOutcomePerInput(t *testing.T) {
	fake := &fakeClassifier{results: []out.ClassifyResult{
		{Index: 1, CategoryID: id(1), Summary: "meeting notes"},
		// index 2 missing entirely
		{Index: 3, CategoryID: id(2), Summary: "weekly digest"},
		{Index: 99, CategoryID: id(1), Summary: "phantom"}, // unknown index
	}}
	svc := NewService(fake, 0)

	emails := testEmails(3)
	outcomes := svc.ClassifyEmails(context.Background(), emails, testCategories)

	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].CategoryID == nil || *outcomes[0].CategoryID != 1 {
		t.Errorf("outcome 0 category = %v, want 1", outcomes[0].CategoryID)
	}
	if outcomes[1].CategoryID != nil {
		t.Errorf("missing result should be uncategorized, got %v", *outcomes[1].CategoryID)
	}
	if outcomes[1].Summary != "Email from Alice" {
		t.Errorf("missing result summary = %q, want synthesized sender summary", outcomes[1].Summary)
	}
	if outcomes[2].CategoryID == nil || *outcomes[2].CategoryID != 2 {
		t.Errorf("outcome 2 category = %v, want 2", outcomes[2].CategoryID)
	}
	for i, o := range outcomes {
		if o.EmailID != emails[i].ID {
			t.Errorf("outcome %d email ID = %d, want %d", i, o.EmailID, emails[i].ID)
		}
	}
}

func TestClassifyEmailsInvalidCategoryCoerced(t *testing.T) {
	fake := &fakeClassifier{results: []out.ClassifyResult{
		{Index: 1, CategoryID: id(999), Summary: "summary"},
	}}
	svc := NewService(fake, 0)

	outcomes := svc.ClassifyEmails(context.Background(), testEmails(1), testCategories)
	if outcomes[0].CategoryID != nil {
		t.Errorf("invalid category reference should coerce to uncategorized, got %d", *outcomes[0].CategoryID)
	}
	if outcomes[0].Summary != "summary" {
		t.Errorf("summary should survive coercion, got %q", outcomes[0].Summary)
	}
}

func TestClassifyEmailsBatchFailureFallsBack(t *testing.T) {
	fake := &fakeClassifier{err: errors.New("llm unavailable")}
	svc := NewService(fake, 0)

	emails := testEmails(2)
	emails[1].SenderName = ""
	emails[1].SenderEmail = "bob@example.com"

	outcomes := svc.ClassifyEmails(context.Background(), emails, testCategories)
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(outcomes))
	}
	for _, o := range outcomes {
		if o.CategoryID != nil {
			t.Error("fallback outcomes must be uncategorized")
		}
	}
	if outcomes[0].Summary != "Email from Alice" {
		t.Errorf("fallback summary = %q", outcomes[0].Summary)
	}
	if outcomes[1].Summary != "Email from bob@example.com" {
		t.Errorf("fallback summary without sender name = %q", outcomes[1].Summary)
	}
}

func TestClassifyEmailsBatching(t *testing.T) {
	fake := &fakeClassifier{resultsFn: func(items []out.ClassifyItem) []out.ClassifyResult {
		results := make([]out.ClassifyResult, len(items))
		for i := range items {
			results[i] = out.ClassifyResult{Index: i + 1, Summary: "s"}
		}
		return results
	}}
	svc := NewService(fake, 2)

	outcomes := svc.ClassifyEmails(context.Background(), testEmails(5), testCategories)
	if fake.calls != 3 {
		t.Errorf("expected 3 batches for 5 emails at size 2, got %d", fake.calls)
	}
	if len(outcomes) != 5 {
		t.Errorf("expected 5 outcomes, got %d", len(outcomes))
	}
	if len(fake.gotItems[2]) != 1 {
		t.Errorf("last batch should hold the remainder, got %d items", len(fake.gotItems[2]))
	}
}

func TestClassifyEmailsTruncatesBody(t *testing.T) {
	fake := &fakeClassifier{}
	svc := NewService(fake, 0)

	emails := testEmails(1)
	emails[0].BodyText = strings.Repeat("x", maxBodyChars+500)

	svc.ClassifyEmails(context.Background(), emails, nil)
	if got := len(fake.gotItems[0][0].Body); got != maxBodyChars {
		t.Errorf("body handed to classifier is %d chars, want %d", got, maxBodyChars)
	}
}

func TestClassifyEmailsTruncationKeepsRuneBoundary(t *testing.T) {
	fake := &fakeClassifier{}
	svc := NewService(fake, 0)

	// A multi-byte rune straddles the byte cap.
	emails := testEmails(1)
	emails[0].BodyText = strings.Repeat("a", maxBodyChars-1) + "日本語"

	svc.ClassifyEmails(context.Background(), emails, nil)
	got := fake.gotItems[0][0].Body
	if !utf8.ValidString(got) {
		t.Errorf("truncated body is not valid UTF-8: %q", got[len(got)-4:])
	}
	if len(got) != maxBodyChars-1 {
		t.Errorf("truncated body is %d bytes, want %d", len(got), maxBodyChars-1)
	}
}

func TestClassifyEmailsEmptyCategoryListStaysUncategorized(t *testing.T) {
	fake := &fakeClassifier{results: []out.ClassifyResult{
		{Index: 1, CategoryID: id(1), Summary: "s"},
	}}
	svc := NewService(fake, 0)

	outcomes := svc.ClassifyEmails(context.Background(), testEmails(1), nil)
	if outcomes[0].CategoryID != nil {
		t.Error("with no categories every outcome must be uncategorized")
	}
}
