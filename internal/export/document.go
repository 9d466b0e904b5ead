package export

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/couchcryptid/quake-watch/internal/views"
)

// ReportTitle heads every exported document.
const ReportTitle = "Nearby earthquakes report"

// DefaultRowsPerPage fits an A4 portrait page at the table's font size.
const DefaultRowsPerPage = 25

// Page is one page of table rows.
type Page struct {
	Number int
	Rows   []views.TableRow
}

// Document is a paginated table export.
type Document struct {
	Title       string
	GeneratedAt time.Time
	Columns     []string
	Pages       []Page
}

// DocumentRenderer lays a Document out in some output format.
type DocumentRenderer interface {
	Render(w io.Writer, doc Document) error
}

// Paginate splits rows into pages of at most perPage rows, numbered from 1.
// A non-positive perPage uses DefaultRowsPerPage. No rows gives no pages.
func Paginate(rows []views.TableRow, perPage int) []Page {
	if perPage <= 0 {
		perPage = DefaultRowsPerPage
	}
	pages := make([]Page, 0, (len(rows)+perPage-1)/perPage)
	for start := 0; start < len(rows); start += perPage {
		end := min(start+perPage, len(rows))
		pages = append(pages, Page{Number: len(pages) + 1, Rows: rows[start:end]})
	}
	return pages
}

// NewDocument builds a titled, paginated document.
func NewDocument(rows []views.TableRow, perPage int, generatedAt time.Time) Document {
	return Document{
		Title:       ReportTitle,
		GeneratedAt: generatedAt,
		Columns:     views.TableColumns,
		Pages:       Paginate(rows, perPage),
	}
}

// MarkdownRenderer writes each page as a Markdown table under a page heading.
type MarkdownRenderer struct{}

func (MarkdownRenderer) Render(w io.Writer, doc Document) error {
	ew := &errWriter{w: w}
	ew.printf("# %s\n\n", doc.Title)
	if !doc.GeneratedAt.IsZero() {
		ew.printf("Generated %s\n\n", doc.GeneratedAt.Format(time.DateTime))
	}
	if len(doc.Pages) == 0 {
		ew.printf("No earthquakes.\n")
		return ew.err
	}

	for _, p := range doc.Pages {
		ew.printf("## Page %d of %d\n\n", p.Number, len(doc.Pages))
		ew.row(doc.Columns)
		sep := make([]string, len(doc.Columns))
		for i := range sep {
			sep[i] = "---"
		}
		ew.row(sep)
		for _, r := range p.Rows {
			ew.row(r.Cells())
		}
		ew.printf("\n")
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

var cellEscaper = strings.NewReplacer("|", `\|`, "\n", "<br>")

func (e *errWriter) row(cells []string) {
	escaped := make([]string, len(cells))
	for i, c := range cells {
		escaped[i] = cellEscaper.Replace(c)
	}
	e.printf("| %s |\n", strings.Join(escaped, " | "))
}
