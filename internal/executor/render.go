package executor

import (
	"html"
	"net/url"
	"strings"
)

// safeCTAURL restricts a call-to-action link to http(s). Anything else,
// including javascript: and data: schemes, collapses to a harmless
// placeholder. The URL originates from an LLM and is never trusted.
func safeCTAURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "#"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "#"
	}
	return raw
}

// renderHTML turns model-generated plain text into a minimal HTML email.
// Every interpolated string is HTML-escaped; the model writes copy, not
// markup.
func renderHTML(body, ctaText, ctaURL string) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><body style="font-family:Arial,Helvetica,sans-serif;color:#1a1a2e;max-width:600px;margin:0 auto;padding:24px;">`)

	for _, para := range strings.Split(body, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		b.WriteString(`<p style="line-height:1.6;">`)
		// Single newlines inside a paragraph become <br>.
		lines := strings.Split(para, "\n")
		for i, line := range lines {
			if i > 0 {
				b.WriteString("<br>")
			}
			b.WriteString(html.EscapeString(line))
		}
		b.WriteString(`</p>`)
	}

	if ctaText != "" {
		b.WriteString(`<p style="margin:32px 0;"><a href="`)
		b.WriteString(html.EscapeString(safeCTAURL(ctaURL)))
		b.WriteString(`" style="background:#4f46e5;color:#ffffff;padding:12px 24px;border-radius:6px;text-decoration:none;">`)
		b.WriteString(html.EscapeString(ctaText))
		b.WriteString(`</a></p>`)
	}

	b.WriteString(`</body></html>`)
	return b.String()
}

// renderText is the plain-text alternative part of the email.
func renderText(body, ctaText, ctaURL string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(body))
	if ctaText != "" {
		b.WriteString("\n\n")
		b.WriteString(ctaText)
		b.WriteString(": ")
		b.WriteString(safeCTAURL(ctaURL))
	}
	b.WriteString("\n")
	return b.String()
}
