package canvasdoc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateElement_ReplacesBodyAndKeepsMarkers(t *testing.T) {
	doc := New("// ELEMENT: sun\nold();\n// END ELEMENT: sun")
	require.NoError(t, doc.UpdateElement("sun", "drawSun();", false))
	assert.Equal(t, "// ELEMENT: sun\ndrawSun();\n// END ELEMENT: sun", doc.Text())
}

func TestUpdateElement_IsIdempotent(t *testing.T) {
	doc := New("")
	require.NoError(t, doc.UpdateElement("sky", "ctx.fillRect(0, 0, 800, 300);", true))
	first := doc.Text()
	require.NoError(t, doc.UpdateElement("sky", "ctx.fillRect(0, 0, 800, 300);", true))
	assert.Equal(t, first, doc.Text())
	assert.Len(t, doc.Elements(), 1)
}

func TestUpdateElement_CaseInsensitiveNames(t *testing.T) {
	doc := New("// element: Sun\nold();\n// end element: SUN")
	require.NoError(t, doc.UpdateElement("sun", "new();", false))
	span, ok := doc.Element("SUN")
	require.True(t, ok)
	assert.Equal(t, "new();", span.Body)
}

func TestUpdateElement_MissingWithoutCreateLeavesDocumentUntouched(t *testing.T) {
	original := "// ELEMENT: sun\ndrawSun();\n// END ELEMENT: sun"
	doc := New(original)
	err := doc.UpdateElement("nope", "x();", false)
	var notFound *ElementNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "nope", notFound.Name)
	assert.Equal(t, original, doc.Text())
}

func TestUpdateElement_IgnoresUnrelatedMarkersBetweenPair(t *testing.T) {
	doc := New(strings.Join([]string{
		"// ELEMENT: outer",
		"// ELEMENT: inner",
		"inner();",
		"// END ELEMENT: inner",
		"// END ELEMENT: outer",
	}, "\n"))
	require.NoError(t, doc.UpdateElement("outer", "replaced();", false))
	span, ok := doc.Element("outer")
	require.True(t, ok)
	assert.Equal(t, "replaced();", span.Body)
	_, ok = doc.Element("inner")
	assert.False(t, ok, "inner markers were replaced with the outer body")
}

func TestElements_RoundTripRecoversEveryBody(t *testing.T) {
	doc := New("")
	want := map[string]string{
		"sky":    "ctx.fillStyle = '#8ec';\nctx.fillRect(0, 0, 800, 300);",
		"sun":    "ctx.arc(400, 100, 40, 0, Math.PI * 2);",
		"ground": "ctx.fillRect(0, 300, 800, 300);",
	}
	for name, body := range want {
		require.NoError(t, doc.UpdateElement(name, body, true))
	}
	got := map[string]string{}
	for _, span := range doc.Elements() {
		got[span.Name] = span.Body
	}
	assert.Equal(t, want, got)
}

func TestElements_UnmatchedMarkersAreTolerated(t *testing.T) {
	doc := New(strings.Join([]string{
		"// END ELEMENT: ghost",
		"// ELEMENT: dangling",
		"x();",
		"// ELEMENT: ok",
		"y();",
		"// END ELEMENT: ok",
	}, "\n"))
	spans := doc.Elements()
	// "dangling" has no end marker of its own name; "ok" resolves normally.
	require.Len(t, spans, 1)
	assert.Equal(t, "ok", spans[0].Name)
	assert.Equal(t, "y();", spans[0].Body)
	_, ok := doc.Element("ghost")
	assert.False(t, ok)
}

func TestAppend_PreservesPriorContentAsPrefix(t *testing.T) {
	original := "ctx.fillRect(0, 0, 10, 10);"
	doc := New(original)
	doc.Append("ctx.strokeRect(5, 5, 20, 20);")
	assert.True(t, strings.HasPrefix(doc.Text(), original))
	assert.Contains(t, doc.Text(), "// Added by assistant")
	assert.True(t, strings.HasSuffix(doc.Text(), "ctx.strokeRect(5, 5, 20, 20);"))
}

func TestReplaceAll(t *testing.T) {
	doc := New("old")
	doc.ReplaceAll("brand new")
	assert.Equal(t, "brand new", doc.Text())
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, "ctx.fill();", StripFences("```javascript\nctx.fill();\n```"))
	assert.Equal(t, "ctx.fill();", StripFences("```js\nctx.fill();\n```"))
	assert.Equal(t, "ctx.fill();", StripFences("ctx.fill();"))
}
