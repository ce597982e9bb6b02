package protocol

import (
	"fmt"
	"strings"
)

// EscapeXML escapes the three characters spec'd in §4.2 — no more, no
// less. encoding/xml's escaper also escapes quotes and apostrophes and
// isn't a drop-in match for the wire format the host expects, so the
// handful of characters that matter are escaped by hand instead.
func EscapeXML(s string) string {
	if !strings.ContainsAny(s, "&<>") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '&':
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// UnescapeXML reverses EscapeXML. It is the mirror image of the
// escaper: only the three entities EscapeXML produces are recognized.
func UnescapeXML(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&amp;", "&")
	return s
}

// ParseCommandString extracts the commandString tag content out of an
// assembled Command packet body. Bodies are built by plain string
// concatenation (§4.2), so they are read back the same unsophisticated
// way: locate the tag delimiters directly rather than parse XML.
func ParseCommandString(body []byte) (string, error) {
	const open = "<commandString>"
	const close = "</commandString>"
	s := string(body)
	start := strings.Index(s, open)
	if start < 0 {
		return "", fmt.Errorf("protocol: body missing <commandString>")
	}
	start += len(open)
	end := strings.Index(s[start:], close)
	if end < 0 {
		return "", fmt.Errorf("protocol: body missing </commandString>")
	}
	return UnescapeXML(s[start : start+end]), nil
}
