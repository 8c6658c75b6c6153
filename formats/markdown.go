package formats

import (
	"fmt"
	"io"
	"strings"

	"github.com/arthur-debert/noodm/types"
)

// Markdown renders documents as a pipe table with title-cased headers
var Markdown = &Format{
	Name:      "markdown",
	Extension: ".md",
	Render: func(w io.Writer, docs []types.Document) error {
		if len(docs) == 0 {
			_, err := fmt.Fprintln(w, "_No documents._")
			return err
		}

		cols := columns(docs)
		var out strings.Builder
		out.WriteString("|")
		for _, col := range cols {
			out.WriteString(" " + header(col) + " |")
		}
		out.WriteString("\n|")
		for range cols {
			out.WriteString(" --- |")
		}
		out.WriteString("\n")

		for _, doc := range docs {
			out.WriteString("|")
			for _, col := range cols {
				out.WriteString(" " + escapeCell(cell(doc[col])) + " |")
			}
			out.WriteString("\n")
		}
		_, err := io.WriteString(w, out.String())
		return err
	},
}

func init() {
	mustRegister(Markdown)
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", "<br>")
}
