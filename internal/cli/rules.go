package cli

import (
	"errors"
	"fmt"

	"github.com/JonMunkholm/stageload/internal/rules"
	"github.com/spf13/cobra"
)

// RulesCmd returns the rules command group.
func RulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage validation rules",
	}
	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesSeedCmd())
	return cmd
}

func rulesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List validation rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			list, err := app.Stores.Rules.List(cmd.Context())
			if err != nil {
				return err
			}
			printRules(cmd.OutOrStdout(), list)
			return nil
		},
	}
}

func rulesSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed [file]",
		Short: "Upsert validation rules from a YAML or JSON file",
		Long: `Upsert validation rules from a file. Without an argument the file named
by RULES_FILE is used. Existing rules with the same file pattern are
replaced.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			path := app.Config.Rules.File
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return errors.New("no rules file given and RULES_FILE is not set")
			}

			n, err := rules.SeedFile(cmd.Context(), app.Stores.Rules, path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d rules from %s\n", green.Sprint("Seeded"), n, path)
			return nil
		},
	}
}
