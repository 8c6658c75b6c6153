package formats

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/arthur-debert/noodm/types"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// Table renders documents as aligned columns, one row per document
var Table = &Format{
	Name:      "table",
	Extension: ".txt",
	Render: func(w io.Writer, docs []types.Document) error {
		if len(docs) == 0 {
			_, err := fmt.Fprintln(w, "(no documents)")
			return err
		}

		cols := columns(docs)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		headers := make([]string, len(cols))
		for i, col := range cols {
			headers[i] = header(col)
		}
		fmt.Fprintln(tw, strings.Join(headers, "\t"))

		for _, doc := range docs {
			row := make([]string, len(cols))
			for i, col := range cols {
				row[i] = strings.ReplaceAll(cell(doc[col]), "\t", " ")
			}
			fmt.Fprintln(tw, strings.Join(row, "\t"))
		}
		return tw.Flush()
	},
}

func init() {
	mustRegister(Table)
}

// header turns a field name into a column title: created_at -> Created At
func header(field string) string {
	if field == types.IDField {
		return "ID"
	}
	return titleCaser.String(strings.ReplaceAll(field, "_", " "))
}
