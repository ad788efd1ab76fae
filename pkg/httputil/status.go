package httputil

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// maxSummaryLen bounds diagnostic snippets taken from response bodies
const maxSummaryLen = 160

// StatusError is returned for any non-200 response
type StatusError struct {
	StatusCode int
	URL        string
	Summary    string // short description of the response body, may be empty
}

func (e *StatusError) Error() string {
	if e.Summary != "" {
		return fmt.Sprintf("unexpected status code %d from %s: %s", e.StatusCode, e.URL, e.Summary)
	}
	return fmt.Sprintf("unexpected status code %d from %s", e.StatusCode, e.URL)
}

// CheckStatus returns a *StatusError unless resp is 200 OK.
// On error the body is consumed (bounded) to build the summary.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	statusErr := &StatusError{
		StatusCode: resp.StatusCode,
		Summary:    SummarizeBody(resp.Header.Get("Content-Type"), body),
	}
	if resp.Request != nil {
		statusErr.URL = resp.Request.URL.String()
	}
	return statusErr
}

// SummarizeBody reduces a response body to a one-line diagnostic.
// HTML pages (block pages, gateway errors) yield their <title> or first heading.
func SummarizeBody(contentType string, body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	if strings.Contains(contentType, "html") || bytes.HasPrefix(bytes.ToLower(trimmed), []byte("<!doctype html")) ||
		bytes.HasPrefix(bytes.ToLower(trimmed), []byte("<html")) {
		if s := summarizeHTML(trimmed); s != "" {
			return s
		}
	}

	return truncate(strings.Join(strings.Fields(string(trimmed)), " "))
}

func summarizeHTML(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	for _, sel := range []string{"title", "h1", "h2"} {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			return truncate(strings.Join(strings.Fields(text), " "))
		}
	}

	return ""
}

// truncate cuts s to at most maxSummaryLen bytes on a rune boundary
func truncate(s string) string {
	if len(s) <= maxSummaryLen {
		return s
	}
	cut := maxSummaryLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
