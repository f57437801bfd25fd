package canvasdoc

import (
	"fmt"
	"regexp"
)

// DefaultRedactThreshold is the minimum base64 run length that gets redacted.
// A data URI below this size is small enough to send to the model as-is.
const DefaultRedactThreshold = 256

const redactedToken = "<image-data-redacted>"

// Redact returns a copy of text in which every inline data-URI image payload
// whose base64 run is at least threshold characters long is replaced by a
// short placeholder token. This keeps the document textually bounded after
// repeated webpage imports. The rasterizer always receives the un-redacted
// original; only the copy sent back to the model as conversation text is
// redacted.
func Redact(text string, threshold int) string {
	if threshold <= 0 {
		threshold = DefaultRedactThreshold
	}
	re := regexp.MustCompile(fmt.Sprintf(
		`(data:image/[a-zA-Z0-9.+-]+;base64,)[A-Za-z0-9+/=]{%d,}`, threshold))
	return re.ReplaceAllString(text, "${1}"+redactedToken)
}
