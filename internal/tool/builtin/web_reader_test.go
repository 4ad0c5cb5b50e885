package builtin

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractContentBasic(t *testing.T) {
	htmlStr := `<html><head><title>Test Page</title></head>
	<body><p>first paragraph</p><p>second paragraph</p></body></html>`

	title, _, content, err := extractContent(strings.NewReader(htmlStr))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if title != "Test Page" {
		t.Errorf("title = %q, want %q", title, "Test Page")
	}
	if !strings.Contains(content, "first paragraph") || !strings.Contains(content, "second paragraph") {
		t.Errorf("content missing paragraphs: %q", content)
	}
}

func TestExtractContentSkipScriptStyle(t *testing.T) {
	htmlStr := `<html><body>
	<script>var x = 1;</script>
	<style>.hidden{display:none}</style>
	<p>visible content</p>
	<nav>nav bar</nav>
	</body></html>`

	_, _, content, _ := extractContent(strings.NewReader(htmlStr))

	if strings.Contains(content, "var x") {
		t.Error("script content should be skipped")
	}
	if strings.Contains(content, ".hidden") {
		t.Error("style content should be skipped")
	}
	if strings.Contains(content, "nav bar") {
		t.Error("nav content should be skipped")
	}
	if !strings.Contains(content, "visible content") {
		t.Error("body text should be extracted")
	}
}

func TestExtractContentBlockElements(t *testing.T) {
	htmlStr := `<html><body>
	<h1>heading one</h1><p>paragraph one</p><p>paragraph two</p>
	</body></html>`

	_, _, content, _ := extractContent(strings.NewReader(htmlStr))

	// Block elements should have newlines between them
	if !strings.Contains(content, "heading one") {
		t.Error("h1 content should be extracted")
	}
	if !strings.Contains(content, "paragraph one") {
		t.Error("p content should be extracted")
	}
	// Check that newlines exist (block separation)
	if !strings.Contains(content, "\n") {
		t.Error("block elements should be separated by newlines")
	}
}

func TestExtractContentNestedSkip(t *testing.T) {
	htmlStr := `<html><body>
	<nav><div><a href="#">link</a></div></nav>
	<p>body text</p>
	</body></html>`

	_, _, content, _ := extractContent(strings.NewReader(htmlStr))

	if strings.Contains(content, "link") {
		t.Error("nested nav content should be skipped")
	}
	if !strings.Contains(content, "body text") {
		t.Error("body text should be extracted")
	}
}

func TestExtractContentLongText(t *testing.T) {
	longText := strings.Repeat("this is a long line of text", 2000)
	htmlStr := "<html><body><p>" + longText + "</p></body></html>"

	_, _, content, _ := extractContent(strings.NewReader(htmlStr))

	runes := []rune(content)
	// extractContent itself doesn't truncate; truncation happens in Execute
	if len(runes) == 0 {
		t.Error("content should not be empty for long text")
	}
}

func TestWebReaderInvalidURL(t *testing.T) {
	ctx := context.Background()
	tool := NewWebReaderTool()
	result, err := tool.Execute(ctx, []byte(`{"url":"ftp://example.com"}`))
	if err != nil {
		t.Fatalf("Execute should not return error: %v", err)
	}
	if result.Error == "" {
		t.Error("should return error for non-http URL")
	}
}

func TestWebReaderEmptyURL(t *testing.T) {
	ctx := context.Background()
	tool := NewWebReaderTool()
	result, err := tool.Execute(ctx, []byte(`{"url":""}`))
	if err != nil {
		t.Fatalf("Execute should not return error: %v", err)
	}
	if result.Error == "" {
		t.Error("should return error for empty URL")
	}
}

func TestWebReaderMissingScheme(t *testing.T) {
	ctx := context.Background()
	tool := NewWebReaderTool()
	result, err := tool.Execute(ctx, []byte(`{"url":"www.example.com"}`))
	if err != nil {
		t.Fatalf("Execute should not return error: %v", err)
	}
	if result.Error == "" {
		t.Error("should return error for URL without scheme")
	}
}

func TestWebReaderBadJSON(t *testing.T) {
	ctx := context.Background()
	tool := NewWebReaderTool()
	result, err := tool.Execute(ctx, []byte(`not json`))
	if err != nil {
		t.Fatalf("Execute should not return error: %v", err)
	}
	if result.Error == "" {
		t.Error("should return error for invalid JSON")
	}
}

func TestWebReaderToolInterface(t *testing.T) {
	tool := NewWebReaderTool()
	if tool.Name() != "web_reader" {
		t.Errorf("Name() = %q, want %q", tool.Name(), "web_reader")
	}
	if tool.Description() == "" {
		t.Error("Description() should not be empty")
	}
	schema := tool.InputSchema()
	if len(schema) == 0 {
		t.Error("InputSchema() should not be empty")
	}
	// Verify schema contains "url" field
	if !strings.Contains(string(schema), `"url"`) {
		t.Error("InputSchema() should contain 'url' field")
	}
}

func TestExtractContentMetaDescription(t *testing.T) {
	htmlStr := `<html><head>
	<title>Test</title>
	<meta name="description" content="this is the page summary description">
	</head><body><p>body text</p></body></html>`

	_, desc, _, _ := extractContent(strings.NewReader(htmlStr))
	if desc != "this is the page summary description" {
		t.Errorf("description = %q, want %q", desc, "this is the page summary description")
	}
}

func TestExtractContentOGDescription(t *testing.T) {
	tests := []struct {
		name    string
		html    string
		wantDesc string
	}{
		{
			name: "og:description only",
			html: `<html><head>
				<title>OG Test</title>
				<meta property="og:description" content="Open Graph description content">
			</head><body><p>body text</p></body></html>`,
			wantDesc: "Open Graph description content",
		},
		{
			name: "name=description takes priority over og:description",
			html: `<html><head>
				<meta name="description" content="standard description takes priority">
				<meta property="og:description" content="OG description second">
			</head><body><p>body text</p></body></html>`,
			wantDesc: "standard description takes priority",
		},
		{
			name: "og:description when name=description absent",
			html: `<html><head>
				<meta property="og:description" content="only OG description present">
			</head><body><p>body text</p></body></html>`,
			wantDesc: "only OG description present",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, desc, _, err := extractContent(strings.NewReader(tt.html))
			if err != nil {
				t.Fatalf("extractContent() error: %v", err)
			}
			if desc != tt.wantDesc {
				t.Errorf("description = %q, want %q", desc, tt.wantDesc)
			}
		})
	}
}

func TestExtractContentSkipForm(t *testing.T) {
	htmlStr := `<html><body>
	<p>body content</p>
	<form><button>sign up now</button><input placeholder="email"></form>
	</body></html>`

	_, _, content, _ := extractContent(strings.NewReader(htmlStr))
	if strings.Contains(content, "sign up now") {
		t.Error("form button text should be skipped")
	}
	if !strings.Contains(content, "body content") {
		t.Error("body text should be extracted")
	}
}

func TestExtractContentArticleHeader(t *testing.T) {
	htmlStr := `<html><body>
	<header><nav>top nav</nav></header>
	<article>
		<header><h1>article heading</h1><span>author name</span></header>
		<p>article body</p>
	</article>
	</body></html>`

	_, _, content, _ := extractContent(strings.NewReader(htmlStr))
	if strings.Contains(content, "top nav") {
		t.Error("page-level header should be skipped")
	}
	if !strings.Contains(content, "article heading") {
		t.Error("article-level header should be preserved")
	}
	if !strings.Contains(content, "article body") {
		t.Error("article body should be extracted")
	}
}

// ── integration tests (httptest.NewServer) ──────────────────────────────────

// TestWebReaderNon200 verifies a non-200 status code surfaces as ToolResult.Error
// and that the response body is drained to allow HTTP connection reuse.
func TestWebReaderNon200(t *testing.T) {
	tests := []struct {
		name string
		code int
	}{
		{"404 Not Found", http.StatusNotFound},
		{"500 Internal Server Error", http.StatusInternalServerError},
		{"403 Forbidden", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				fmt.Fprintln(w, "error response body — must be drained")
			}))
			defer server.Close()

			tool := NewWebReaderTool()
			result, err := tool.Execute(
				context.Background(),
				[]byte(fmt.Sprintf(`{"url":%q}`, server.URL)),
			)
			if err != nil {
				t.Fatalf("Execute() returned unexpected Go error: %v", err)
			}
			if result.Error == "" {
				t.Errorf("Expected ToolResult.Error for HTTP %d, got output: %q", tt.code, result.Output)
			}
			if !strings.Contains(result.Error, fmt.Sprintf("%d", tt.code)) {
				t.Errorf("Error %q should contain status code %d", result.Error, tt.code)
			}
		})
	}
}

// TestWebReaderNonHTML verifies dispatch for various non-HTML Content-Types:
//   - application/json  → pretty-printed output
//   - text/plain        → output as-is
//   - image/png         → rejected with an error
//   - application/pdf   → rejected with an error
func TestWebReaderNonHTML(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		wantOutput  bool   // true=expect the Output field, false=expect the Error field
		wantSubstr  string // expected substring
	}{
		{
			name:        "application/json pretty-printed",
			contentType: "application/json",
			body:        `{"hello":"world","num":42}`,
			wantOutput:  true,
			wantSubstr:  "hello",
		},
		{
			name:        "application/json invalid falls back to raw",
			contentType: "application/json",
			body:        `not valid json at all`,
			wantOutput:  true,
			wantSubstr:  "not valid json",
		},
		{
			name:        "text/plain returned as-is",
			contentType: "text/plain; charset=utf-8",
			body:        "plain text content\nsecond line",
			wantOutput:  true,
			wantSubstr:  "plain text content",
		},
		{
			name:        "image/png rejected",
			contentType: "image/png",
			body:        "\x89PNG binary data",
			wantOutput:  false,
			wantSubstr:  "unsupported content type",
		},
		{
			name:        "application/pdf rejected",
			contentType: "application/pdf",
			body:        "%PDF-1.4 data",
			wantOutput:  false,
			wantSubstr:  "unsupported content type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			tool := NewWebReaderTool()
			result, err := tool.Execute(
				context.Background(),
				[]byte(fmt.Sprintf(`{"url":%q}`, server.URL)),
			)
			if err != nil {
				t.Fatalf("Execute() returned unexpected Go error: %v", err)
			}

			if tt.wantOutput {
				if result.Error != "" {
					t.Errorf("Expected Output, got Error: %q", result.Error)
				}
				if !strings.Contains(result.Output, tt.wantSubstr) {
					t.Errorf("Output %q should contain %q", result.Output, tt.wantSubstr)
				}
			} else {
				if result.Error == "" {
					t.Errorf("Expected Error, got Output: %q", result.Output)
				}
				if !strings.Contains(result.Error, tt.wantSubstr) {
					t.Errorf("Error %q should contain %q", result.Error, tt.wantSubstr)
				}
			}
		})
	}
}

// TestCollapseBlankLines verifies consecutive blank lines collapse to at most one.
func TestCollapseBlankLines(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "no blank lines unchanged",
			input: "line1\nline2\nline3",
			want:  "line1\nline2\nline3",
		},
		{
			name:  "single blank line preserved",
			input: "line1\n\nline2",
			want:  "line1\n\nline2",
		},
		{
			name:  "two consecutive blank lines collapsed to one",
			input: "line1\n\n\nline2",
			want:  "line1\n\nline2",
		},
		{
			name:  "many consecutive blank lines collapsed to one",
			input: "line1\n\n\n\n\nline2",
			want:  "line1\n\nline2",
		},
		{
			name:  "leading blank lines collapsed",
			input: "\n\nline1",
			want:  "\nline1",
		},
		{
			name:  "trailing blank lines collapsed",
			input: "line1\n\n\n",
			want:  "line1\n",
		},
		{
			name:  "empty string unchanged",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collapseBlankLines(tt.input)
			if got != tt.want {
				t.Errorf("collapseBlankLines(%q) =\n  %q\nwant:\n  %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestWebReaderHTMLEndToEnd serves real HTML via httptest and verifies, end to
// end, the title, meta description, <header> skipping, and <article> header retention.
func TestWebReaderHTMLEndToEnd(t *testing.T) {
	const page = `<html><head>
		<title>Integration Test Page</title>
		<meta name="description" content="this is the page summary">
	</head><body>
		<header><nav>top nav bar</nav></header>
		<article>
			<header><h1>article main heading</h1></header>
			<p>article body content goes here</p>
		</article>
		<footer>footer copyright notice</footer>
	</body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)
	}))
	defer server.Close()

	tool := NewWebReaderTool()
	result, err := tool.Execute(
		context.Background(),
		[]byte(fmt.Sprintf(`{"url":%q}`, server.URL)),
	)
	if err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if result.Error != "" {
		t.Fatalf("Expected output, got error: %q", result.Error)
	}

	checks := []struct {
		desc    string
		present bool
		substr  string
	}{
		{"title in output", true, "Integration Test Page"},
		{"meta description in output", true, "this is the page summary"},
		{"article body extracted", true, "article body content goes here"},
		{"article-level header preserved", true, "article main heading"},
		{"page-level nav skipped", false, "top nav bar"},
		{"footer skipped", false, "footer copyright notice"},
	}

	for _, c := range checks {
		got := strings.Contains(result.Output, c.substr)
		if got != c.present {
			verb := "contain"
			if !c.present {
				verb = "NOT contain"
			}
			t.Errorf("[%s] Output should %s %q\nOutput:\n%s", c.desc, verb, c.substr, result.Output)
		}
	}
}
