package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arthur-debert/noodm/formats"
	"github.com/arthur-debert/noodm/noodm"
	"github.com/arthur-debert/noodm/search"
	"github.com/arthur-debert/noodm/types"
	"github.com/spf13/cobra"
)

func (c *cli) addCommands() {
	c.root.AddCommand(
		c.insertCommand(),
		c.findCommand(),
		c.getCommand(),
		c.updateCommand(),
		c.deleteCommand(),
		c.collectionsCommand(),
		c.dropCommand(),
		c.renameCommand(),
		c.inspectCommand(),
		c.searchCommand(),
		c.migrateCommand(),
	)
}

// render writes docs in the configured output format
func (c *cli) render(w io.Writer, docs []types.Document) error {
	f, err := formats.Get(c.cfg.Format)
	if err != nil {
		return err
	}
	return f.Render(w, docs)
}

func (c *cli) insertCommand() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "insert <collection> [json]...",
		Short: "Insert documents into a collection",
		Long: `Insert one or more documents. Each argument is a JSON object or an array
of objects. With --file, documents are read from a file whose format follows
its extension (.json, .yaml, .txt), or from stdin as JSON with --file -.

The id of every inserted document is printed on its own line.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			const operation = "insert documents"
			docs, err := readDocuments(operation, args[1:], file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			return c.withDatabase(ctx, operation, true, func(db *noodm.Database) error {
				col, err := db.Collection(args[0])
				if err != nil {
					return err
				}
				ids, err := col.InsertMany(ctx, docs)
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Read documents from a file (- for stdin)")
	return cmd
}

// readDocuments parses the JSON arguments and the optional input file
func readDocuments(operation string, args []string, file string, stdin io.Reader) ([]types.Document, error) {
	var docs []types.Document
	for _, arg := range args {
		parsed, err := formats.JSON.Parse(strings.NewReader(arg))
		if err != nil {
			return nil, NewValidationError(operation, "document", arg,
				`Pass a JSON object such as '{"name": "Ada"}'`)
		}
		docs = append(docs, parsed...)
	}

	if file != "" {
		parsed, err := readFile(operation, file, stdin)
		if err != nil {
			return nil, err
		}
		docs = append(docs, parsed...)
	}

	if len(docs) == 0 {
		return nil, NewValidationError(operation, "input", "",
			"Pass documents as JSON arguments or with --file")
	}
	return docs, nil
}

func readFile(operation, file string, stdin io.Reader) ([]types.Document, error) {
	if file == "-" {
		docs, err := formats.JSON.Parse(stdin)
		if err != nil {
			return nil, NewValidationError(operation, "stdin", err.Error())
		}
		return docs, nil
	}

	f, err := formats.ByExtension(filepath.Ext(file))
	if err != nil {
		return nil, NewValidationError(operation, "file", file,
			"Use a .json, .yaml or .txt file")
	}
	in, err := os.Open(file)
	if err != nil {
		return nil, NewConfigError(operation, err.Error(), "Check the path passed with --file")
	}
	defer func() { _ = in.Close() }()

	docs, err := f.Parse(in)
	if err != nil {
		return nil, &CLIError{
			Operation:  operation,
			Cause:      fmt.Sprintf("cannot parse %s as %s", file, f.Name),
			Details:    err.Error(),
			Underlying: err,
		}
	}
	return docs, nil
}

func (c *cli) findCommand() *cobra.Command {
	var (
		where []string
		count bool
	)
	cmd := &cobra.Command{
		Use:   "find <collection>",
		Short: "List documents matching conditions",
		Long: `List the documents of a collection in insertion order. Conditions given
with --where are combined; each has the form field<op>value where op is one
of =, !=, >, >=, <, <=.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			const operation = "find documents"
			ctx := cmd.Context()
			return c.withDatabase(ctx, operation, false, func(db *noodm.Database) error {
				col, err := existing(db, operation, args[0])
				if err != nil {
					return err
				}
				cond, err := parseWhere(operation, where, col.Fields())
				if err != nil {
					return err
				}
				if count {
					n, err := col.Count(ctx, cond)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), n)
					return nil
				}
				docs, err := col.Find(ctx, cond)
				if err != nil {
					return err
				}
				return c.render(cmd.OutOrStdout(), docs)
			})
		},
	}
	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "Condition field<op>value (repeatable)")
	cmd.Flags().BoolVar(&count, "count", false, "Print the number of matches only")
	return cmd
}

func (c *cli) getCommand() *cobra.Command {
	var where []string
	cmd := &cobra.Command{
		Use:   "get <collection> [id]",
		Short: "Show the first document matching conditions",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			const operation = "get document"
			if len(args) == 2 {
				where = append(where, types.IDField+"="+args[1])
			}
			if len(where) == 0 {
				return NewValidationError(operation, "query", "",
					"Pass a document id or at least one --where condition")
			}
			ctx := cmd.Context()
			return c.withDatabase(ctx, operation, false, func(db *noodm.Database) error {
				col, err := existing(db, operation, args[0])
				if err != nil {
					return err
				}
				cond, err := parseWhere(operation, where, col.Fields())
				if err != nil {
					return err
				}
				doc, ok, err := col.Get(ctx, cond)
				if err != nil {
					return err
				}
				if !ok {
					return NewNotFoundError(operation, "document", strings.Join(where, " "),
						fmt.Sprintf("Run 'noodm find %s' to list its documents", args[0]))
				}
				return c.render(cmd.OutOrStdout(), []types.Document{doc})
			})
		},
	}
	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "Condition field<op>value (repeatable)")
	return cmd
}

func (c *cli) updateCommand() *cobra.Command {
	var where, set, unset []string
	cmd := &cobra.Command{
		Use:   "update <collection>",
		Short: "Set fields on matching documents",
		Long: `Set or remove fields on every document matching the --where conditions.
The update is all or nothing: a document breaking a rule aborts it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			const operation = "update documents"
			ctx := cmd.Context()
			return c.withDatabase(ctx, operation, true, func(db *noodm.Database) error {
				col, err := existing(db, operation, args[0])
				if err != nil {
					return err
				}
				fields := col.Fields()
				cond, err := parseWhere(operation, where, fields)
				if err != nil {
					return err
				}
				setter, err := parseSet(operation, set, unset, fields)
				if err != nil {
					return err
				}
				n, err := col.Update(ctx, cond, setter)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "updated %d\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "Condition field<op>value (repeatable)")
	cmd.Flags().StringArrayVar(&set, "set", nil, "Assignment field=value (repeatable)")
	cmd.Flags().StringArrayVar(&unset, "unset", nil, "Field to remove (repeatable)")
	return cmd
}

func (c *cli) deleteCommand() *cobra.Command {
	var (
		where []string
		all   bool
	)
	cmd := &cobra.Command{
		Use:   "delete <collection>",
		Short: "Delete matching documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			const operation = "delete documents"
			if len(where) == 0 && !all {
				return NewValidationError(operation, "query", "",
					"Pass at least one --where condition",
					"Use --all to delete every document")
			}
			ctx := cmd.Context()
			return c.withDatabase(ctx, operation, true, func(db *noodm.Database) error {
				col, err := existing(db, operation, args[0])
				if err != nil {
					return err
				}
				cond, err := parseWhere(operation, where, col.Fields())
				if err != nil {
					return err
				}
				n, err := col.Delete(ctx, cond)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringArrayVarP(&where, "where", "w", nil, "Condition field<op>value (repeatable)")
	cmd.Flags().BoolVar(&all, "all", false, "Delete every document of the collection")
	return cmd
}

func (c *cli) collectionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List collections and their sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			const operation = "list collections"
			return c.withDatabase(cmd.Context(), operation, false, func(db *noodm.Database) error {
				var rows []types.Document
				for _, name := range db.Collections() {
					col, err := db.Collection(name)
					if err != nil {
						return err
					}
					rows = append(rows, types.Document{
						types.IDField: types.String(name),
						"documents":   types.Int(int64(col.Len())),
					})
				}
				return c.render(cmd.OutOrStdout(), rows)
			})
		},
	}
}

func (c *cli) dropCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "drop <collection>",
		Short: "Remove a collection and its documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			const operation = "drop collection"
			ctx := cmd.Context()
			return c.withDatabase(ctx, operation, false, func(db *noodm.Database) error {
				if err := db.RemoveCollection(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "dropped %s\n", args[0])
				return nil
			})
		},
	}
}

func (c *cli) renameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rename <from> <to>",
		Short: "Rename a collection",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			const operation = "rename collection"
			ctx := cmd.Context()
			return c.withDatabase(ctx, operation, false, func(db *noodm.Database) error {
				if _, err := db.RenameCollection(ctx, args[0], args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %s\n", args[0], args[1])
				return nil
			})
		},
	}
}

func (c *cli) inspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <collection>",
		Short: "Show declared fields and index sizes",
		Long: `Show one row per declared field: its type, index and null rules, default,
named rules and, for indexed fields, the number of distinct indexed values.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			const operation = "inspect collection"
			return c.withDatabase(cmd.Context(), operation, false, func(db *noodm.Database) error {
				col, err := existing(db, operation, args[0])
				if err != nil {
					return err
				}
				fields := col.Fields()
				names := make([]string, 0, len(fields))
				for name := range fields {
					names = append(names, name)
				}
				sort.Strings(names)

				rows := make([]types.Document, 0, len(names))
				for _, name := range names {
					rows = append(rows, describeField(col, name, fields[name]))
				}
				return c.render(cmd.OutOrStdout(), rows)
			})
		},
	}
}

func describeField(col *noodm.Collection, name string, f types.FieldDescriptor) types.Document {
	row := types.Document{
		types.IDField: types.String(name),
		"type":        types.String(f.Type),
		"unique":      types.Bool(f.Unique),
		"indexed":     types.Bool(f.HasIndex()),
		"nullable":    types.Bool(f.Nullable),
	}
	if f.Type == "" {
		row["type"] = types.String("any")
	}
	if !f.Default.IsUndefined() {
		row["default"] = f.Default
	}
	if len(f.Rules) > 0 {
		rules := make([]string, 0, len(f.Rules))
		for rule, param := range f.Rules {
			rules = append(rules, fmt.Sprintf("%s=%v", rule, param))
		}
		sort.Strings(rules)
		row["rules"] = types.String(strings.Join(rules, " "))
	}
	if f.HasIndex() {
		row["keys"] = types.Int(int64(len(col.IndexSnapshot(name))))
	}
	return row
}

func (c *cli) searchCommand() *cobra.Command {
	var (
		where   []string
		options search.Options
	)
	cmd := &cobra.Command{
		Use:   "search <collection> <text>",
		Short: "Rank documents by text matches",
		Long: `Search the string fields of the documents matching --where for the given
text. Results are ordered by score, which is added as the _score field.
With --highlight, matched fields show their matches between ** markers.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			const operation = "search documents"
			options.Query = args[1]
			ctx := cmd.Context()
			return c.withDatabase(ctx, operation, false, func(db *noodm.Database) error {
				col, err := existing(db, operation, args[0])
				if err != nil {
					return err
				}
				cond, err := parseWhere(operation, where, col.Fields())
				if err != nil {
					return err
				}
				results, err := search.Collection(ctx, col, options, cond)
				if err != nil {
					return err
				}

				docs := make([]types.Document, 0, len(results))
				for _, r := range results {
					doc := r.Document
					for field, text := range r.Highlights {
						doc[field] = types.String(text)
					}
					doc["_score"] = types.Number(r.Score)
					docs = append(docs, doc)
				}
				return c.render(cmd.OutOrStdout(), docs)
			})
		},
	}
	flags := cmd.Flags()
	flags.StringArrayVarP(&where, "where", "w", nil, "Condition field<op>value (repeatable)")
	flags.StringSliceVar(&options.Fields, "field", nil, "Fields to search (default: every string field)")
	flags.StringVar(&options.Primary, "primary", "", "Field whose matches rank first")
	flags.BoolVar(&options.ExactMatch, "exact", false, "Match whole field values only")
	flags.BoolVar(&options.CaseSensitive, "case-sensitive", false, "Match case")
	flags.BoolVar(&options.EnableHighlight, "highlight", false, "Mark matches in the output")
	flags.IntVar(&options.MaxResults, "limit", 0, "Maximum number of results")
	return cmd
}
