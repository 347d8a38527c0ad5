package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/pagetree/internal/app"
)

var (
	queryUser string
	queryDocs []string
	queryJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Answer a question from stored document trees",
	Long: `Query selects sections from each candidate document's tree, reads them and
writes an answer citing its sources. Candidates are the --doc ids, or every
document of --user when none are given. Missing trees are generated first.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if queryUser == "" && len(queryDocs) == 0 {
			return fmt.Errorf("either --user or --doc is required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		services, err := app.New(ctx, cfg, newLogger(cmd))
		if err != nil {
			return err
		}
		defer services.Close()

		result, err := services.Reasoner.Query(ctx, strings.Join(args, " "), queryDocs, queryUser)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if queryJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
		renderResult(out, result)
		return nil
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryUser, "user", "", "Search every document owned by this user")
	queryCmd.Flags().StringSliceVar(&queryDocs, "doc", nil, "Document id to search (repeatable)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "Print the result as JSON")
	rootCmd.AddCommand(queryCmd)
}
