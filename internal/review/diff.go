package review

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/go-cmp/cmp"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// Styles renders diff output. Colours are dropped automatically when the
// target writer is not a terminal.
type Styles struct {
	Header  lipgloss.Style
	Removed lipgloss.Style
	Added   lipgloss.Style
}

// NewStyles creates styles bound to the colour profile of w.
func NewStyles(w io.Writer) Styles {
	r := lipgloss.NewRenderer(w)
	return Styles{
		Header:  r.NewStyle().Bold(true),
		Removed: r.NewStyle().Foreground(lipgloss.Color("1")),
		Added:   r.NewStyle().Foreground(lipgloss.Color("2")),
	}
}

// FieldDiff renders the before/after pair of one field:
//
//	[<identity>][<path>]
//	- "<original>"
//	+ "<candidate>"
//
// Values are Go-quoted so control characters stay visible.
func (s Styles) FieldDiff(identity, path, original, candidate string) string {
	var b strings.Builder
	b.WriteString(s.Header.Render(fmt.Sprintf("[%s][%s]", identity, path)))
	b.WriteByte('\n')
	b.WriteString(s.Removed.Render("- " + strconv.Quote(original)))
	b.WriteByte('\n')
	b.WriteString(s.Added.Render("+ " + strconv.Quote(candidate)))
	b.WriteByte('\n')
	return b.String()
}

// RecordDiff returns a line diff of the relaxed Extended JSON forms of two
// documents, or "" when they render identically. The encoder escapes invalid
// UTF-8 in before as \ufffd.
func RecordDiff(before, after bson.Raw) (string, error) {
	a, err := extJSONLines(before)
	if err != nil {
		return "", fmt.Errorf("render original: %w", err)
	}
	b, err := extJSONLines(after)
	if err != nil {
		return "", fmt.Errorf("render rewritten: %w", err)
	}
	return cmp.Diff(a, b), nil
}

func extJSONLines(doc bson.Raw) ([]string, error) {
	out, err := bson.MarshalExtJSONIndent(doc, false, false, "", "  ")
	if err != nil {
		return nil, err
	}
	return strings.Split(string(out), "\n"), nil
}
