package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/portfolio-admin/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for the CLI summary mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// CollectionEntry is one record listed by PrintCollection. Err is set when the
// stored document could not be decoded or failed its schema.
type CollectionEntry struct {
	Key    string
	Record types.Record
	Err    error
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	for _, line := range lines {
		if len([]rune(line)) > boxWidth-4 {
			line = string([]rune(line)[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintCollection outputs a human-readable summary of one content collection.
func (p *Printer) PrintCollection(kind types.Kind, entries []CollectionEntry) {
	var sb strings.Builder
	if len(entries) == 0 {
		sb.WriteString("(empty)\n")
	}

	invalid := 0
	for _, e := range entries {
		if e.Err != nil {
			invalid++
			sb.WriteString(fmt.Sprintf("[%s] INVALID: %v\n", e.Key, firstLine(e.Err.Error())))
			continue
		}
		sb.WriteString(fmt.Sprintf("[%s] %s\n", e.Key, Summarize(e.Record)))
	}
	if invalid > 0 {
		sb.WriteString(fmt.Sprintf("\n%d of %d documents invalid\n", invalid, len(entries)))
	}

	p.printBox(fmt.Sprintf("%s (%d)", kind.Title, len(entries)), sb.String())
}

// Summarize renders a one-line description of a record.
func Summarize(rec types.Record) string {
	switch r := rec.(type) {
	case *types.Bio:
		return fmt.Sprintf("%s  roles: %s", r.Name, joinLimited(r.Roles))
	case *types.Skill:
		return fmt.Sprintf("%s (%s)%s", r.Name, r.Type, attached(r.Image))
	case *types.Experience:
		return fmt.Sprintf("%s @ %s, %s", r.Role, r.Company, r.Date)
	case *types.Project:
		pin := ""
		if r.OnTop == 1 {
			pin = " *"
		}
		return fmt.Sprintf("%s [%s] %d member(s)%s", r.Title, r.Category, len(r.Member), pin)
	case *types.Education:
		return fmt.Sprintf("%s, %s (%s)", r.School, r.Degree, r.Date)
	case nil:
		return "(none)"
	default:
		return fmt.Sprintf("%T", rec)
	}
}

func joinLimited(values []string) string {
	if len(values) <= maxItemsToShow {
		return strings.Join(values, ", ")
	}
	return strings.Join(values[:maxItemsToShow], ", ") + fmt.Sprintf(" ... and %d more", len(values)-maxItemsToShow)
}

func attached(url string) string {
	if url == "" {
		return ""
	}
	return " +img"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
