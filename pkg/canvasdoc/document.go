package canvasdoc

import (
	"fmt"
	"regexp"
	"strings"
)

// Document holds the canvas JavaScript source for one session. Named spans are
// delimited by paired marker comments:
//
//	// ELEMENT: sun
//	ctx.fillStyle = '#fc0';
//	...
//	// END ELEMENT: sun
//
// Marker matching is case-insensitive on both the keyword and the name. The
// scan is line-oriented and tolerant: unmatched or malformed markers never
// fail a scan, they only make that span unresolvable.
type Document struct {
	text string
}

var (
	startMarkerRe = regexp.MustCompile(`(?i)^\s*//\s*ELEMENT:\s*(.+?)\s*$`)
	endMarkerRe   = regexp.MustCompile(`(?i)^\s*//\s*END\s+ELEMENT:\s*(.+?)\s*$`)
)

// Span is a resolved element: line indices of its markers and the body text
// between them. Spans are recomputed on every scan, never cached, since any
// edit can shift the document.
type Span struct {
	Name      string
	StartLine int
	EndLine   int
	Body      string
}

// ElementNotFoundError is returned by UpdateElement when the named element
// does not exist and creation was not requested.
type ElementNotFoundError struct {
	Name string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element not found: %s", e.Name)
}

func New(text string) *Document {
	return &Document{text: text}
}

func (d *Document) Text() string {
	return d.text
}

// ReplaceAll unconditionally overwrites the whole document.
func (d *Document) ReplaceAll(text string) {
	d.text = text
}

// Append concatenates fragment to the end of the document, preceded by a
// separating newline and an attribution comment. The prior text is preserved
// verbatim as the prefix.
func (d *Document) Append(fragment string) {
	var b strings.Builder
	b.WriteString(d.text)
	b.WriteString("\n\n// Added by assistant\n")
	b.WriteString(fragment)
	d.text = b.String()
}

// Elements scans the document and returns every resolvable span in document
// order. A start marker pairs with the next end marker carrying the same name;
// unrelated markers between them are ignored. An end marker with no earlier
// matching start is inert.
func (d *Document) Elements() []Span {
	lines := strings.Split(d.text, "\n")
	var spans []Span
	claimed := make(map[int]bool)
	for i, line := range lines {
		m := startMarkerRe.FindStringSubmatch(line)
		if m == nil || claimed[i] {
			continue
		}
		name := m[1]
		end := d.findEnd(lines, i+1, name)
		if end < 0 {
			continue
		}
		claimed[i] = true
		claimed[end] = true
		spans = append(spans, Span{
			Name:      name,
			StartLine: i,
			EndLine:   end,
			Body:      strings.Join(lines[i+1:end], "\n"),
		})
	}
	return spans
}

// Element returns the first span whose name matches (case-insensitive).
func (d *Document) Element(name string) (Span, bool) {
	for _, s := range d.Elements() {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Span{}, false
}

// UpdateElement replaces the body of the named element, keeping the marker
// lines verbatim. When the element does not exist, a freshly wrapped block is
// appended if createIfMissing is set; otherwise the document is left
// byte-for-byte unchanged and an ElementNotFoundError is returned.
func (d *Document) UpdateElement(name, body string, createIfMissing bool) error {
	lines := strings.Split(d.text, "\n")
	for i, line := range lines {
		m := startMarkerRe.FindStringSubmatch(line)
		if m == nil || !strings.EqualFold(m[1], name) {
			continue
		}
		end := d.findEnd(lines, i+1, m[1])
		if end < 0 {
			break
		}
		var out []string
		out = append(out, lines[:i+1]...)
		out = append(out, strings.Split(body, "\n")...)
		out = append(out, lines[end:]...)
		d.text = strings.Join(out, "\n")
		return nil
	}
	if !createIfMissing {
		return &ElementNotFoundError{Name: name}
	}
	var b strings.Builder
	b.WriteString(d.text)
	if d.text != "" && !strings.HasSuffix(d.text, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n// ELEMENT: ")
	b.WriteString(name)
	b.WriteString("\n")
	b.WriteString(body)
	b.WriteString("\n// END ELEMENT: ")
	b.WriteString(name)
	d.text = b.String()
	return nil
}

// findEnd locates the end marker for name at or after line start. Only an
// exact (case-insensitive) name match terminates the scan; unrelated start or
// end markers belong to nested or sibling elements and are skipped.
func (d *Document) findEnd(lines []string, start int, name string) int {
	for j := start; j < len(lines); j++ {
		m := endMarkerRe.FindStringSubmatch(lines[j])
		if m != nil && strings.EqualFold(m[1], name) {
			return j
		}
	}
	return -1
}

var fenceRe = regexp.MustCompile("(?i)```(?:javascript|js)?[ \t]*\n?")

// StripFences removes markdown code fences from model-returned code. The
// model is asked for raw JavaScript but occasionally wraps it anyway.
func StripFences(code string) string {
	return strings.TrimSpace(fenceRe.ReplaceAllString(code, ""))
}
