package canvasdoc

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRedact_ReplacesLongPayloadAndLeavesOriginal(t *testing.T) {
	payload := strings.Repeat("QUJD", 100) // 400 chars of base64
	original := `ctx.drawImage("data:image/png;base64,` + payload + `", 0, 0, 100, 100);`

	redacted := Redact(original, DefaultRedactThreshold)

	assert.Contains(t, redacted, "data:image/png;base64,<image-data-redacted>")
	longRun := regexp.MustCompile(`[A-Za-z0-9+/=]{256,}`)
	assert.False(t, longRun.MatchString(redacted), "no base64 run at or above the threshold survives")
	// Redaction produces a copy; the original string is untouched.
	assert.Contains(t, original, payload)
}

func TestRedact_LeavesShortPayloadsAlone(t *testing.T) {
	src := `ctx.drawImage("data:image/png;base64,aGVsbG8=", 0, 0);`
	assert.Equal(t, src, Redact(src, DefaultRedactThreshold))
}

func TestRedact_HandlesMultiplePayloads(t *testing.T) {
	payload := strings.Repeat("eA==", 200)
	src := "a data:image/png;base64," + payload + " b data:image/jpeg;base64," + payload + " c"
	out := Redact(src, 0)
	assert.Equal(t, 2, strings.Count(out, "<image-data-redacted>"))
}
