package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func parseBatchID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid batch id %q: %w", s, err)
	}
	return id, nil
}

// StatusCmd returns the status command.
func StatusCmd() *cobra.Command {
	var children bool

	cmd := &cobra.Command{
		Use:   "status <batch-id>",
		Short: "Show the manifest of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBatchID(args[0])
			if err != nil {
				return err
			}

			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			m, err := app.Pipeline.GetStatus(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printManifest(out, m)

			if !children {
				return nil
			}
			list, err := app.Stores.Manifests.FindByParent(cmd.Context(), id)
			if err != nil {
				return err
			}
			for i := range list {
				fmt.Fprintln(out)
				printManifest(out, &list[i])
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&children, "children", "c", false, "Also show the manifests of archive members")

	return cmd
}

// ReportCmd returns the report command.
func ReportCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "report <batch-id>",
		Short: "Show the validation report of a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseBatchID(args[0])
			if err != nil {
				return err
			}

			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			r, err := app.Engine.GenerateReport(cmd.Context(), id)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), r, limit)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum issues to list (0 for all)")

	return cmd
}
