package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWebScraperStripsHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><script>var x = 1;</script><style>p{}</style></head>
<body><h1>Title</h1><p>Hello &amp; welcome.</p></body></html>`))
	}))
	defer srv.Close()

	tool := NewWebScraperTool(5*time.Second, 0)
	out, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "<") || strings.Contains(out, "var x") {
		t.Errorf("markup survived: %q", out)
	}
	if !strings.Contains(out, "Title") || !strings.Contains(out, "Hello & welcome.") {
		t.Errorf("text content lost: %q", out)
	}
}

func TestWebScraperPlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("raw body < untouched >"))
	}))
	defer srv.Close()

	tool := NewWebScraperTool(5*time.Second, 0)
	out, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if out != "raw body < untouched >" {
		t.Errorf("plain text altered: %q", out)
	}
}

func TestWebScraperCapsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer srv.Close()

	tool := NewWebScraperTool(5*time.Second, 10)
	out, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 10 {
		t.Errorf("body length = %d, want capped at 10", len(out))
	}
}

func TestWebScraperRejectsBadURLs(t *testing.T) {
	tool := NewWebScraperTool(time.Second, 0)
	ctx := context.Background()
	for _, url := range []string{"", "ftp://host/file", "file:///etc/passwd", "http://"} {
		if _, err := tool.Execute(ctx, map[string]any{"url": url}); err == nil {
			t.Errorf("url %q accepted", url)
		}
	}
}

func TestWebScraperNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	tool := NewWebScraperTool(time.Second, 0)
	if _, err := tool.Execute(context.Background(), map[string]any{"url": srv.URL}); err == nil {
		t.Error("non-200 response accepted")
	}
}

func TestStripHTML(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"entities", "a &lt;b&gt; &quot;c&quot;", `a <b> "c"`},
		{"collapse spaces", "a    b\tc", "a b c"},
		{"blank lines", "a\n\n\n\n\nb", "a\n\nb"},
		{"nested tags", "<div><span>x</span></div>", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripHTML(tt.in); got != tt.want {
				t.Errorf("stripHTML(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
