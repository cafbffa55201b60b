package runner

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
)

// decodeLine converts raw process output to a UTF-8 string. Valid UTF-8 passes
// through. Otherwise a GBK decode is attempted for tools that emit localized
// messages, and as a last resort invalid bytes are replaced.
func decodeLine(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	if decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(raw); err == nil && utf8.Valid(decoded) {
		return string(decoded)
	}
	return strings.ToValidUTF8(string(raw), "�")
}
