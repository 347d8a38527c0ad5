package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dgallion1/pagetree/internal/app"
	"github.com/dgallion1/pagetree/internal/parser"
	"github.com/dgallion1/pagetree/internal/pipeline"
	"github.com/dgallion1/pagetree/internal/store"
)

var (
	buildFormat string
	buildUser   string
)

var buildCmd = &cobra.Command{
	Use:   "build <file.pdf>",
	Short: "Build the tree for a PDF and print it",
	Long: `Build extracts the PDF's pages, generates its table of contents, builds the
page-range tree and summarizes every node. With --user the document is also
registered in the catalog and its tree stored, ready for queries.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if buildFormat != "json" && buildFormat != "outline" {
			return fmt.Errorf("unknown format %q (json, outline)", buildFormat)
		}
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		if !parser.IsSupportedExtension(path) {
			return fmt.Errorf("%s: only pdf files are supported", args[0])
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := newLogger(cmd)
		ctx := cmd.Context()

		services, err := app.New(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer services.Close()

		tree, err := services.Builder.GenerateTree(ctx, path)
		if err != nil {
			return err
		}

		if buildUser != "" {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			doc := &store.Document{
				UserID:      buildUser,
				Filename:    filepath.Base(path),
				FilePath:    path,
				FileType:    parser.FileType(path),
				Title:       tree.DocName,
				ContentHash: pipeline.ContentHashHex(data),
				SizeBytes:   int64(len(data)),
			}
			if err := services.Store.CreateDocument(ctx, doc); err != nil {
				return err
			}
			if err := services.Store.StoreTree(ctx, doc.ID, tree); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "stored as document %s\n", doc.ID)
		}

		out := cmd.OutOrStdout()
		if buildFormat == "outline" {
			renderOutline(out, tree)
			return nil
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(tree)
	},
}

func init() {
	buildCmd.Flags().StringVarP(&buildFormat, "format", "f", "json", "Output format (json, outline)")
	buildCmd.Flags().StringVar(&buildUser, "user", "", "Register the document and store its tree for this user")
	rootCmd.AddCommand(buildCmd)
}
