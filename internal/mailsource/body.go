package mailsource

import (
	"encoding/base64"
	"strings"

	"fjacquet/networth-sync/internal/textutils"
)

// ExtractText returns the readable body of a message: the first text/plain
// part in depth-first order, else the first text/html part rendered as
// text, else the snippet. A text/plain part holding markup is rendered too.
func ExtractText(m *Message) string {
	if m == nil {
		return ""
	}
	if text, ok := findPart(m.Parts, "text/plain"); ok {
		if textutils.LooksLikeHTML(text) {
			return textutils.HTMLToText(text)
		}
		return textutils.NormalizeWhitespace(text)
	}
	if doc, ok := findPart(m.Parts, "text/html"); ok {
		return textutils.HTMLToText(doc)
	}
	return textutils.NormalizeWhitespace(m.Snippet)
}

func findPart(parts []Part, mimeType string) (string, bool) {
	for _, p := range parts {
		if p.Filename == "" && strings.EqualFold(baseMimeType(p.MimeType), mimeType) && p.Data != "" {
			if text, err := DecodeData(p.Data); err == nil && strings.TrimSpace(text) != "" {
				return text, true
			}
		}
		if text, ok := findPart(p.Parts, mimeType); ok {
			return text, true
		}
	}
	return "", false
}

func baseMimeType(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.TrimSpace(mimeType)
}

// DecodeData decodes base64url part data, padded or not.
func DecodeData(data string) (string, error) {
	data = strings.TrimRight(strings.TrimSpace(data), "=")
	b, err := base64.RawURLEncoding.DecodeString(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// EncodeData is the inverse of DecodeData.
func EncodeData(text string) string {
	return base64.URLEncoding.EncodeToString([]byte(text))
}
