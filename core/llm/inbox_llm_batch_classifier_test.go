package llm

import (
	"strings"
	"testing"

	"inbox_server/core/domain"
	"inbox_server/core/port/out"
)

func TestParseBatchResponse(t *testing.T) {
	tests := []struct {
		name    string
		resp    string
		want    int
		wantErr bool
	}{
		{
			name: "bare array",
			resp: `[{"index":1,"category_id":3,"summary":"invoice due"},{"index":2,"category_id":null,"summary":"hello"}]`,
			want: 2,
		},
		{
			name: "markdown fenced array",
			resp: "```json\n[{\"index\":1,\"category_id\":null,\"summary\":\"s\"}]\n```",
			want: 1,
		},
		{
			name: "object wrapped results",
			resp: `{"results":[{"index":1,"category_id":2,"summary":"s"}]}`,
			want: 1,
		},
		{
			name:    "prose is an error",
			resp:    "Sure! Here are the classifications you asked for.",
			wantErr: true,
		},
		{
			name:    "empty response is an error",
			resp:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := parseBatchResponse(tt.resp)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected parse error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseBatchResponse() error: %v", err)
			}
			if len(results) != tt.want {
				t.Errorf("got %d results, want %d", len(results), tt.want)
			}
		})
	}
}

func TestParseBatchResponseFields(t *testing.T) {
	results, err := parseBatchResponse(`[{"index":2,"category_id":7,"summary":"  padded  "}]`)
	if err != nil {
		t.Fatalf("parseBatchResponse() error: %v", err)
	}
	r := results[0]
	if r.Index != 2 {
		t.Errorf("index = %d, want 2", r.Index)
	}
	if r.CategoryID == nil || *r.CategoryID != 7 {
		t.Errorf("category = %v, want 7", r.CategoryID)
	}
	if r.Summary != "padded" {
		t.Errorf("summary = %q, want trimmed", r.Summary)
	}
}

func TestBuildBatchPromptNumbersEmails(t *testing.T) {
	items := []out.ClassifyItem{
		{Subject: "first", SenderEmail: "a@x.com"},
		{Subject: "second", SenderName: "Bob", SenderEmail: "b@x.com", Body: "hello"},
	}
	categories := []domain.Category{{ID: 4, Name: "Work", Description: "job mail"}}

	prompt := buildBatchPrompt(items, categories)

	for _, want := range []string{
		"- 4: Work (job mail)",
		"---EMAIL 1---",
		"---EMAIL 2---",
		"From: Bob <b@x.com>",
		"Subject: first",
		"Body: hello",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildBatchPromptOmitsCategoryTableWhenEmpty(t *testing.T) {
	prompt := buildBatchPrompt([]out.ClassifyItem{{Subject: "x", SenderEmail: "a@x.com"}}, nil)
	if strings.Contains(prompt, "Categories:") {
		t.Error("summary-only prompt must not carry a category table")
	}
}
