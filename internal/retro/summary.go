package retro

import (
	"bytes"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
)

const maxSummaryLen = 200

// summarizeBody reduces an unexpected upstream body to one line for the log.
// The API sits behind a proxy that answers outages with HTML pages, so those
// are reduced to title plus visible text.
func summarizeBody(body []byte, contentType string) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "empty body"
	}
	if looksLikeHTML(contentType, trimmed) {
		if s := summarizeHTML(trimmed); s != "" {
			return s
		}
	}
	return truncate(strings.Join(strings.Fields(string(trimmed)), " "), maxSummaryLen)
}

func looksLikeHTML(contentType string, body []byte) bool {
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		return true
	}
	head := strings.ToLower(string(body[:min(len(body), 64)]))
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html")
}

func summarizeHTML(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript, iframe, svg, img, header, footer, nav").Remove()

	title := strings.TrimSpace(doc.Find("head > title").First().Text())

	var text string
	if inner, err := doc.Find("body").Html(); err == nil {
		if md, err := htmltomarkdown.ConvertString(inner); err == nil {
			text = md
		}
	}
	if text == "" {
		text = doc.Find("body").Text()
	}
	text = strings.Join(strings.Fields(text), " ")

	switch {
	case title != "" && text != "":
		return truncate(title+": "+text, maxSummaryLen)
	case title != "":
		return truncate(title, maxSummaryLen)
	default:
		return truncate(text, maxSummaryLen)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
