package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"codeplane/internal/model"
	"codeplane/internal/mutate"
	"codeplane/internal/query"
)

var (
	refactorSymbol    string
	refactorNewName   string
	refactorID        string
	refactorSession   string
	refactorJustify   string
	refactorMoveFrom  string
	refactorMoveTo    string
	refactorInspectAt string
	inspectContext    int
)

var refactorCmd = &cobra.Command{
	Use:   "refactor",
	Short: "preview, apply and inspect rename/move/impact refactors",
}

var refactorRenameCmd = &cobra.Command{
	Use:   "rename",
	Short: "preview renaming a symbol repo-wide",
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

		r := query.NewRefactor(a.st, mutate.NewFileEngine(repoRoot))

		files, err := a.st.AllFiles()
		if err != nil {
			return err
		}
		pathByFileID := make(map[int64]string, len(files))
		for _, f := range files {
			pathByFileID[f.ID] = f.Path
		}

		var defs []model.DefFact
		for _, f := range files {
			fdefs, err := a.st.DefFactsByFile(f.ID)
			if err != nil {
				return err
			}
			defs = append(defs, fdefs...)
		}

		// RefFactsUnresolved's "below tier" filter doubles as an unbounded
		// scan when given a ceiling above the highest tier.
		refs, err := a.st.RefFactsUnresolved(model.TierProven + 1)
		if err != nil {
			return err
		}

		fileContents := make(map[string]string)
		for _, d := range defs {
			path := pathByFileID[d.FileID]
			if path == "" || fileContents[path] != "" {
				continue
			}
			content, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			fileContents[path] = string(content)
		}

		preview := r.PreviewRename(defs, refs, fileContents, pathByFileID, refactorSymbol, refactorNewName)
		return printJSON(preview)
	},
}

var refactorApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "apply a previewed refactor by id",
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

		r := query.NewRefactor(a.st, mutate.NewFileEngine(repoRoot))
		result, err := r.Apply(context.Background(), refactorID)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var refactorInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "show context around a low-certainty hunk before applying",
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(refactorInspectAt)
		if err != nil {
			return err
		}
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

		r := query.NewRefactor(a.st, mutate.NewFileEngine(repoRoot))
		snippets, err := r.Inspect(refactorID, refactorInspectAt, string(content), inspectContext)
		if err != nil {
			return err
		}
		for _, s := range snippets {
			fmt.Println(s)
			fmt.Println("---")
		}
		return nil
	},
}

var refactorReconCmd = &cobra.Command{
	Use:   "recon",
	Short: "mark a session as having done recon, a precondition for move/impact",
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

		r := query.NewRefactor(a.st, mutate.NewFileEngine(repoRoot))
		r.Recon(refactorSession)
		fmt.Printf("session %s marked recon-complete\n", refactorSession)
		return nil
	},
}

var refactorMoveCmd = &cobra.Command{
	Use:   "move",
	Short: "move a file, gated on a prior recon call plus a justification",
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

		r := query.NewRefactor(a.st, mutate.NewFileEngine(repoRoot))
		result, err := r.Move(refactorSession, refactorJustify, refactorMoveFrom, refactorMoveTo)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

var refactorImpactCmd = &cobra.Command{
	Use:   "impact",
	Short: "assess a symbol's blast radius, gated on a prior recon call plus a justification",
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

		r := query.NewRefactor(a.st, mutate.NewFileEngine(repoRoot))
		result, err := r.Impact(refactorSession, refactorJustify, refactorSymbol)
		if err != nil {
			return err
		}
		return printJSON(result)
	},
}

func init() {
	refactorRenameCmd.Flags().StringVar(&refactorSymbol, "symbol", "", "symbol name to rename (required)")
	refactorRenameCmd.MarkFlagRequired("symbol")
	refactorRenameCmd.Flags().StringVar(&refactorNewName, "to", "", "new name (required)")
	refactorRenameCmd.MarkFlagRequired("to")

	refactorApplyCmd.Flags().StringVar(&refactorID, "id", "", "refactor id from a previous preview (required)")
	refactorApplyCmd.MarkFlagRequired("id")

	refactorInspectCmd.Flags().StringVar(&refactorID, "id", "", "refactor id from a previous preview (required)")
	refactorInspectCmd.MarkFlagRequired("id")
	refactorInspectCmd.Flags().StringVar(&refactorInspectAt, "file", "", "file to inspect (required)")
	refactorInspectCmd.MarkFlagRequired("file")
	refactorInspectCmd.Flags().IntVar(&inspectContext, "context", 3, "lines of context around each low-certainty hunk")

	refactorReconCmd.Flags().StringVar(&refactorSession, "session", "", "session id (required)")
	refactorReconCmd.MarkFlagRequired("session")

	refactorMoveCmd.Flags().StringVar(&refactorSession, "session", "", "session id (required)")
	refactorMoveCmd.MarkFlagRequired("session")
	refactorMoveCmd.Flags().StringVar(&refactorJustify, "justification", "", "why this move is safe, >= 50 chars (required)")
	refactorMoveCmd.MarkFlagRequired("justification")
	refactorMoveCmd.Flags().StringVar(&refactorMoveFrom, "from", "", "source path (required)")
	refactorMoveCmd.MarkFlagRequired("from")
	refactorMoveCmd.Flags().StringVar(&refactorMoveTo, "to", "", "destination path (required)")
	refactorMoveCmd.MarkFlagRequired("to")

	refactorImpactCmd.Flags().StringVar(&refactorSession, "session", "", "session id (required)")
	refactorImpactCmd.MarkFlagRequired("session")
	refactorImpactCmd.Flags().StringVar(&refactorJustify, "justification", "", "why this impact check is needed, >= 50 chars (required)")
	refactorImpactCmd.MarkFlagRequired("justification")
	refactorImpactCmd.Flags().StringVar(&refactorSymbol, "symbol", "", "symbol to assess (required)")
	refactorImpactCmd.MarkFlagRequired("symbol")

	refactorCmd.AddCommand(refactorRenameCmd, refactorApplyCmd, refactorInspectCmd, refactorReconCmd, refactorMoveCmd, refactorImpactCmd)
}
