package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/JonMunkholm/stageload/internal/core"
	"github.com/JonMunkholm/stageload/internal/domain"
	"github.com/JonMunkholm/stageload/internal/storage"
	"github.com/spf13/cobra"
)

// ingestOptions are the ingest flags. Nil pointers mean the flag was not
// given and the routing default applies.
type ingestOptions struct {
	format  string
	headers *bool
	route   *bool
}

// fileSubmission builds the submission for a local file. routable reports
// whether the router accepts the name.
func fileSubmission(path string, data []byte, opts ingestOptions, routable bool) (core.Submission, error) {
	name := filepath.Base(path)

	if core.IsWorkbook(name) {
		csvData, err := core.ConvertWorkbook(data)
		if err != nil {
			return core.Submission{}, err
		}
		return core.Submission{
			Data:        csvData,
			FileName:    core.WorkbookCSVName(name),
			FilePath:    path,
			ContentType: "text/csv",
			Format:      domain.FormatCSV,
			HasHeaders:  true,
		}, nil
	}
	if !core.IsDelimited(name) {
		return core.Submission{}, fmt.Errorf("%w: %s", core.ErrUnsupportedFileType, filepath.Ext(name))
	}

	route := routable
	if opts.route != nil {
		route = *opts.route
	}
	headers := !route
	if opts.headers != nil {
		headers = *opts.headers
	}

	format := domain.FormatForFile(name)
	if opts.format != "" {
		f, err := domain.ParseFormat(opts.format)
		if err != nil {
			return core.Submission{}, err
		}
		format = f
	}

	return core.Submission{
		Data:            data,
		FileName:        name,
		FilePath:        path,
		ContentType:     storage.ContentType(name),
		Format:          format,
		HasHeaders:      headers,
		RouteByFilename: route,
	}, nil
}

// IngestCmd returns the ingest command.
func IngestCmd() *cobra.Command {
	var (
		format  string
		headers bool
		route   bool
	)

	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Load one file into a staging table",
		Long: `Load a CSV, TSV, TXT or Excel file into a staging table.

Files whose names match the routing pattern are loaded as headerless TSV
into their routed table. Other files get a generated table name and are
read with a header row. Zip archives are handed to the archive loader.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := core.WithSubmitter(cmd.Context(), submitter)
			out := cmd.OutOrStdout()
			name := filepath.Base(path)

			if core.IsArchive(name) {
				res, err := app.Pipeline.IngestArchive(ctx, data, name)
				if err != nil {
					printError(cmd.ErrOrStderr(), err)
					return err
				}
				printBatch(out, res)
				if res.Status == domain.BatchFailed {
					return fmt.Errorf("archive %s failed", name)
				}
				return nil
			}

			opts := ingestOptions{format: format}
			if cmd.Flags().Changed("headers") {
				opts.headers = &headers
			}
			if cmd.Flags().Changed("route") {
				opts.route = &route
			}

			sub, err := fileSubmission(path, data, opts, app.Pipeline.CanRoute(name))
			if err != nil {
				return err
			}

			m, err := app.Pipeline.Ingest(ctx, sub)
			if m != nil {
				printManifest(out, m)
			}
			if err != nil {
				printError(cmd.ErrOrStderr(), err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "", "Delimiter format: csv or tsv (default from extension)")
	cmd.Flags().BoolVar(&headers, "headers", true, "First row holds column names")
	cmd.Flags().BoolVar(&route, "route", false, "Route to a table derived from the file name")

	return cmd
}

// ArchiveCmd returns the archive command.
func ArchiveCmd() *cobra.Command {
	var analyze bool

	cmd := &cobra.Command{
		Use:   "archive <zip>",
		Short: "Load every eligible file in a zip archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			name := filepath.Base(path)
			if !core.IsArchive(name) {
				return fmt.Errorf("%w: %s is not a zip archive", core.ErrUnsupportedFileType, name)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}

			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			ctx := core.WithSubmitter(cmd.Context(), submitter)

			if analyze {
				a, err := app.Pipeline.AnalyzeArchive(ctx, data, name)
				if err != nil {
					printError(cmd.ErrOrStderr(), err)
					return err
				}
				printAnalysis(cmd.OutOrStdout(), a)
				return nil
			}

			res, err := app.Pipeline.IngestArchive(ctx, data, name)
			if err != nil {
				printError(cmd.ErrOrStderr(), err)
				return err
			}
			printBatch(cmd.OutOrStdout(), res)
			if res.Status == domain.BatchFailed {
				return fmt.Errorf("archive %s failed", name)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&analyze, "analyze", false, "Inspect the archive without loading it")

	return cmd
}
