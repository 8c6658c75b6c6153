package main

import (
	"context"
	"fmt"

	"github.com/arthur-debert/noodm/noodm"
	"github.com/arthur-debert/noodm/types"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// migration rewrites the documents of one collection matching cond
type migration struct {
	operation  string
	collection string
	cond       types.Cond
	apply      func(doc types.Document) (types.Document, error)
}

func (c *cli) migrateCommand() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Field migrations over a collection",
		Long: `Rename, remove or add a field across every document of a collection.
A migration is a single update: it applies to all documents or to none.`,
	}
	cmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Preview changes without applying them")

	run := func(cmd *cobra.Command, m migration) error {
		return c.runMigration(cmd.Context(), cmd, m, dryRun)
	}

	renameField := &cobra.Command{
		Use:   "rename-field <collection> <old-name> <new-name>",
		Short: "Rename a field across all documents",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			from, to := args[1], args[2]
			if from == types.IDField || to == types.IDField {
				return NewValidationError("rename field", "field", types.IDField, "The document id cannot be renamed")
			}
			return run(cmd, migration{
				operation:  "rename field",
				collection: args[0],
				cond:       types.Cond{from: types.Exists(true)},
				apply: func(doc types.Document) (types.Document, error) {
					if !doc[to].IsUndefined() {
						return nil, fmt.Errorf("document %s already has field %s", doc.ID(), to)
					}
					doc[to] = doc[from]
					delete(doc, from)
					return doc, nil
				},
			})
		},
	}

	removeField := &cobra.Command{
		Use:   "remove-field <collection> <field>",
		Short: "Remove a field from all documents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			field := args[1]
			if field == types.IDField {
				return NewValidationError("remove field", "field", field, "The document id cannot be removed")
			}
			return run(cmd, migration{
				operation:  "remove field",
				collection: args[0],
				cond:       types.Cond{field: types.Exists(true)},
				apply: func(doc types.Document) (types.Document, error) {
					delete(doc, field)
					return doc, nil
				},
			})
		},
	}

	var value string
	addField := &cobra.Command{
		Use:   "add-field <collection> <field>",
		Short: "Set a field on every document that lacks it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			field := args[1]
			if field == types.IDField {
				return NewValidationError("add field", "field", field, "The document id is assigned on insert")
			}
			return run(cmd, migration{
				operation:  "add field",
				collection: args[0],
				cond:       types.Cond{field: types.Exists(false)},
				apply: func(doc types.Document) (types.Document, error) {
					doc[field] = typedValue(nil, field, value)
					return doc, nil
				},
			})
		},
	}
	addField.Flags().StringVar(&value, "value", "", "Value for the new field (required)")
	_ = addField.MarkFlagRequired("value")

	cmd.AddCommand(renameField, removeField, addField)
	return cmd
}

func (c *cli) runMigration(ctx context.Context, cmd *cobra.Command, m migration, dryRun bool) error {
	return c.withDatabase(ctx, m.operation, !dryRun, func(db *noodm.Database) error {
		col, err := existing(db, m.operation, m.collection)
		if err != nil {
			return err
		}
		total := col.Len()

		var modified int
		if dryRun {
			modified, err = col.Count(ctx, m.cond)
		} else {
			modified, err = col.Update(ctx, m.cond, noodm.Transform(m.apply))
		}
		if err != nil {
			return err
		}

		c.logger.Info("migration finished",
			zap.String("operation", m.operation),
			zap.String("collection", m.collection),
			zap.Int("modified", modified),
			zap.Int("total", total),
			zap.Bool("dry_run", dryRun))

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Modified: %d/%d documents\n", modified, total)
		if dryRun {
			fmt.Fprintln(out, "(DRY RUN - no changes applied)")
		}
		return nil
	})
}
