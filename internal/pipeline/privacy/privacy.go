// Package privacy strips manually-tagged private regions and
// auto-redacts common secret/PII patterns from OCR text before it
// reaches the semantic layer, the cache, or logs.
package privacy

import "regexp"

var privateTagRe = regexp.MustCompile(`(?s)<private>.*?</private>`)

// redactionPatterns covers the common secret/PII shapes that show up on
// screen; each match is replaced wholesale with its bracketed label.
var redactionPatterns = []struct {
	re    *regexp.Regexp
	label string
}{
	{regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "[CREDIT_CARD]"},
	{regexp.MustCompile(`\b[A-Za-z0-9_-]{20,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\b`), "[JWT]"},
	{regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9._-]+`), "Bearer [REDACTED]"},
	{regexp.MustCompile(`(?i)\bAKIA[0-9A-Z]{16}\b`), "[AWS_KEY]"},
	{regexp.MustCompile(`(?i)\bsk-[A-Za-z0-9]{20,}\b`), "[API_KEY]"},
	{regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[:=]\s*\S+`), "$1: [REDACTED]"},
}

// Filter strips <private>...</private> spans then auto-redacts any
// remaining secret/PII-shaped substrings.
func Filter(text string) string {
	stripped := privateTagRe.ReplaceAllString(text, "")
	for _, p := range redactionPatterns {
		stripped = p.re.ReplaceAllString(stripped, p.label)
	}
	return stripped
}
