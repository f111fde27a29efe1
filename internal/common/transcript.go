package common

import (
	"bytes"
	"mime"
	"strings"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TranscriptText decodes a downloaded transcript as UTF-8. HTML exports are
// reduced to their text.
func TranscriptText(data []byte, contentType string) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", NewWrongInputError("Transcript is not valid UTF-8 text")
	}

	text := string(data)
	if !isHTML(text, contentType) {
		return text, nil
	}

	plain, err := HTMLToText(text)
	if err != nil {
		return "", NewWrongInputError(err.Error()).WithCause(err)
	}
	return plain, nil
}

func isHTML(text, contentType string) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if mediaType == "text/html" || mediaType == "application/xhtml+xml" {
			return true
		}
	}

	head := strings.ToLower(strings.TrimSpace(text))
	if len(head) > 64 {
		head = head[:64]
	}
	return strings.HasPrefix(head, "<!doctype html") || strings.HasPrefix(head, "<html")
}
