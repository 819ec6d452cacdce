package content

import (
	"strings"
	"testing"

	"story-generator/internal/apperr"
	"story-generator/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Valid(t *testing.T) {
	raw := `{"title":"T","content":"<p>C</p>","tags":["A","a","B"]}`

	resp, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "T", resp.Title)
	assert.Equal(t, []string{"A", "B"}, resp.Tags)
	assert.Equal(t, "<p>C</p>", resp.BodyHTML)
	assert.Equal(t, "C", resp.Excerpt)
}

func TestParse_Malformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty title", `{"title":"","content":"x"}`},
		{"missing title", `{"content":"x"}`},
		{"missing content", `{"title":"T"}`},
		{"blank content", `{"title":"T","content":"   "}`},
		{"invalid json", `{"title":"T","content":`},
		{"only unsafe html", `{"title":"T","content":"<script>alert(1)</script>"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			assert.ErrorIs(t, err, apperr.ErrMalformedResponse)
		})
	}
}

func TestParse_SanitizesBody(t *testing.T) {
	raw := `{"title":"T","content":"<p>Hello</p><script>x()</script><iframe src=\"https://evil\"></iframe><style>p{}</style><p onclick=\"x()\">World</p>"}`

	resp, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.NotContains(t, resp.BodyHTML, "<script")
	assert.NotContains(t, resp.BodyHTML, "<iframe")
	assert.NotContains(t, resp.BodyHTML, "<style")
	assert.NotContains(t, resp.BodyHTML, "onclick")
	assert.Contains(t, resp.BodyHTML, "Hello")
	assert.Contains(t, resp.BodyHTML, "World")
}

func TestParse_MarkdownContent(t *testing.T) {
	raw := `{"title":"T","content":"## Heading\n\nSome **bold** text.\n\n[[image:0]]\n\nMore."}`

	resp, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Contains(t, resp.BodyHTML, "<h2")
	assert.Contains(t, resp.BodyHTML, "<strong>bold</strong>")
	assert.Contains(t, resp.BodyHTML, "[[image:0]]")
	assert.NotContains(t, resp.Excerpt, "[[image")
}

func TestParse_ReferencesAndMetadata(t *testing.T) {
	raw := `{
		"title":" Title ",
		"content":"<p>Body</p>",
		"excerpt":"Short",
		"references":[{"title":"","url":"https://a.example"},{"title":"No URL","url":""},{"title":"B","url":"https://b.example"}],
		"images":[{"url":"https://img.example/1.jpg","alt":"one"},{"url":""}],
		"token_usage":1234,
		"request_id":"req-9"
	}`

	resp, err := Parse([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "Title", resp.Title)
	assert.Equal(t, "Short", resp.Excerpt)
	assert.Equal(t, []models.Reference{
		{Title: "https://a.example", URL: "https://a.example"},
		{Title: "B", URL: "https://b.example"},
	}, resp.References)
	require.Len(t, resp.Images, 1)
	assert.Equal(t, 1234, resp.TokenUsage)
	assert.Equal(t, "req-9", resp.RequestID)
	assert.Empty(t, resp.Tags)
}

func TestDeriveExcerpt_Truncates(t *testing.T) {
	body := "<p>" + strings.Repeat("字", 200) + "</p>"

	excerpt := DeriveExcerpt(body, ExcerptLength)
	assert.Equal(t, ExcerptLength+1, len([]rune(excerpt)))
	assert.True(t, strings.HasSuffix(excerpt, "…"))
}

func TestNormalizeTags(t *testing.T) {
	got := NormalizeTags([]string{" Go ", "", "go", "Rust", "  ", "RUST", "Zig"})
	assert.Equal(t, []string{"Go", "Rust", "Zig"}, got)
}
