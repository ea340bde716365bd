package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"codeplane/internal/query"
)

var (
	queryFile  string
	queryLimit int
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "bounded fact queries over the index",
}

var queryDefsCmd = &cobra.Command{
	Use:   "defs",
	Short: "list definitions in a file",
	RunE: func(cmd *cobra.Command, args []string) error {
		repoRoot, err := resolveWorkspace()
		if err != nil {
			return err
		}
		cfg, err := loadConfig(repoRoot)
		if err != nil {
			return err
		}
		a, err := newApp(repoRoot, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		fq := query.NewFactQuery(a.st)
		defs, err := fq.DefsByFile(queryFile)
		if err != nil {
			return err
		}
		if queryLimit > 0 && len(defs) > queryLimit {
			defs = defs[:queryLimit]
		}
		return printJSON(defs)
	},
}

var queryAffectedTestsCmd = &cobra.Command{
	Use:   "affected-tests [changed-file...]",
	Short: "find test files affected by a set of changed source files",
	RunE: func(cmd *cobra.Command, args []string) error {
		repoRoot, err := resolveWorkspace()
		if err != nil {
			return err
		}
		cfg, err := loadConfig(repoRoot)
		if err != nil {
			return err
		}
		a, err := newApp(repoRoot, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		fq := query.NewFactQuery(a.st)
		paths, edges, err := fq.ImportEdgesForContext()
		if err != nil {
			return err
		}
		graph := query.NewImportGraph(paths, edges)
		result := graph.AffectedTests(args)
		return printJSON(result)
	},
}

var queryUncoveredCmd = &cobra.Command{
	Use:   "uncovered",
	Short: "find source modules with no test imports",
	RunE: func(cmd *cobra.Command, args []string) error {
		repoRoot, err := resolveWorkspace()
		if err != nil {
			return err
		}
		cfg, err := loadConfig(repoRoot)
		if err != nil {
			return err
		}
		a, err := newApp(repoRoot, cfg)
		if err != nil {
			return err
		}
		defer a.close()

		fq := query.NewFactQuery(a.st)
		paths, edges, err := fq.ImportEdgesForContext()
		if err != nil {
			return err
		}
		graph := query.NewImportGraph(paths, edges)
		return printJSON(graph.UncoveredModules())
	},
}

func init() {
	queryDefsCmd.Flags().StringVar(&queryFile, "file", "", "file path (required)")
	queryDefsCmd.MarkFlagRequired("file")
	queryDefsCmd.Flags().IntVar(&queryLimit, "limit", 0, "max results (0 = unbounded)")

	queryCmd.AddCommand(queryDefsCmd, queryAffectedTestsCmd, queryUncoveredCmd)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
