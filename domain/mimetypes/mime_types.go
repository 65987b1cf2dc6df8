package mimetypes

import (
	"mime"

	"github.com/gabriel-vasile/mimetype"
)

type MIME string

const (
	Unknown         MIME = "unknown"
	TextPlain       MIME = "text/plain"
	TextHTML        MIME = "text/html"
	ApplicationJSON MIME = "application/json"
)

func Matches(detected string, expected MIME) (MIME, bool) {
	mt, _, err := mime.ParseMediaType(detected)
	if err != nil {
		return Unknown, false
	}
	return expected, mt == string(expected)
}

// IsText reports whether the payload sniffs as text. JSON, HTML and the other textual
// formats all descend from text/plain in the detection tree, binary formats do not.
func IsText(payload []byte) bool {
	for m := mimetype.Detect(payload); m != nil; m = m.Parent() {
		if _, ok := Matches(m.String(), TextPlain); ok {
			return true
		}
	}
	return false
}
