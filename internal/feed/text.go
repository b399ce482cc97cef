package feed

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	stripPolicy = bluemonday.StrictPolicy()

	// Characters outside the XML 1.0 Char production.
	xmlIllegal = regexp.MustCompile(`[^\x{0009}\x{000A}\x{000D}\x{0020}-\x{D7FF}\x{E000}-\x{FFFD}\x{10000}-\x{10FFFF}]+`)

	xmlEscaper = strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&apos;",
	)
)

// StripMarkup removes HTML tags and returns plain text with entities decoded.
func StripMarkup(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(stripPolicy.Sanitize(s)))
}

// SanitizeXML replaces runs of characters that XML 1.0 forbids, and invalid
// UTF-8, with a single space.
func SanitizeXML(s string) string {
	s = strings.ToValidUTF8(s, " ")
	return xmlIllegal.ReplaceAllString(s, " ")
}

// xmlText prepares a value for use as XML character data or an attribute.
func xmlText(s string) string {
	return xmlEscaper.Replace(SanitizeXML(s))
}
