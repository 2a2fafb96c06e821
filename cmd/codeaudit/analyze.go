package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"codeaudit/types"

	"github.com/spf13/cobra"
)

var (
	analyzeLanguage    string
	analyzeRepo        string
	analyzeOutput      string
	analyzeNoNarrative bool
	analyzeFailOn      string
)

var languageByExt = map[string]string{
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".go":    "go",
	".java":  "java",
	".php":   "php",
	".rb":    "ruby",
	".cs":    "csharp",
	".c":     "c",
	".cpp":   "cpp",
	".rs":    "rust",
	".kt":    "kotlin",
	".swift": "swift",
	".sql":   "sql",
	".sh":    "shell",
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [file|-]...",
	Short: "Analyze source files, stdin or a GitHub repository",
	Long: `Analyze one or more source files. "-" reads from stdin.
Several files are analyzed as one batch. --repo analyzes a GitHub repository instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if analyzeRepo == "" && len(args) == 0 {
			return fmt.Errorf("give at least one file, - for stdin, or --repo")
		}
		var failOn types.Severity
		if analyzeFailOn != "" {
			sev, ok := types.ParseSeverity(analyzeFailOn)
			if !ok {
				return fmt.Errorf("unknown severity %q", analyzeFailOn)
			}
			failOn = sev
		}

		a, err := buildApp(cmd.Context(), buildOptions{disableNarrative: analyzeNoNarrative})
		if err != nil {
			return err
		}
		defer a.Close()

		reqs, err := readRequests(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}

		var results []types.BatchResult
		switch {
		case len(reqs) == 1:
			report, err := a.engine.AnalyzeRequest(cmd.Context(), reqs[0])
			if err != nil {
				return err
			}
			results = []types.BatchResult{{FileName: reqs[0].FileName, Report: report}}
		default:
			results, err = a.engine.AnalyzeMany(cmd.Context(), reqs)
			if err != nil {
				return err
			}
		}

		if err := render(cmd.OutOrStdout(), results, analyzeOutput); err != nil {
			return err
		}
		if failOn != "" && exceeds(results, failOn) {
			return fmt.Errorf("findings at or above %s severity", failOn)
		}
		return nil
	},
}

func readRequests(stdin io.Reader, args []string) ([]types.AnalysisRequest, error) {
	if analyzeRepo != "" {
		return []types.AnalysisRequest{{RepoURL: analyzeRepo, InputType: "repo", Language: analyzeLanguage, FileName: analyzeRepo}}, nil
	}

	reqs := make([]types.AnalysisRequest, 0, len(args))
	for _, path := range args {
		var (
			data []byte
			err  error
		)
		if path == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		lang := analyzeLanguage
		if lang == "" {
			lang = languageByExt[strings.ToLower(filepath.Ext(path))]
		}
		reqs = append(reqs, types.AnalysisRequest{Code: string(data), Language: lang, FileName: path})
	}
	return reqs, nil
}

func exceeds(results []types.BatchResult, threshold types.Severity) bool {
	for _, r := range results {
		if r.Report == nil {
			continue
		}
		for _, f := range r.Report.Vulnerabilities {
			if f.Severity.Rank() >= threshold.Rank() {
				return true
			}
		}
	}
	return false
}

func render(w io.Writer, results []types.BatchResult, format string) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if len(results) == 1 && results[0].Report != nil {
			return enc.Encode(results[0].Report)
		}
		return enc.Encode(results)
	case "", "text":
		for i, r := range results {
			if i > 0 {
				fmt.Fprintln(w)
			}
			renderText(w, r)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format %q (json, text)", format)
	}
}

func renderText(w io.Writer, r types.BatchResult) {
	fmt.Fprintf(w, "== %s\n", r.FileName)
	if r.Report == nil {
		fmt.Fprintf(w, "error: %s\n", r.Error)
		return
	}
	rep := r.Report
	fmt.Fprintf(w, "score: %.2f/100  risk: %s  ai_enhanced: %v\n", rep.SecurityScore, rep.OverallRisk, rep.AIEnhanced)
	fmt.Fprintln(w, rep.Summary)

	if len(rep.Vulnerabilities) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "SEVERITY\tCATEGORY\tLINES\tORIGIN")
		for _, f := range rep.Vulnerabilities {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Severity, f.Category, joinLines(f.LineNumbers), f.Origin)
		}
		_ = tw.Flush()
	}
	for _, rec := range rep.Recommendations {
		fmt.Fprintf(w, "  - %s\n", rec)
	}
	if len(rep.Degradations) > 0 {
		parts := make([]string, len(rep.Degradations))
		for i, d := range rep.Degradations {
			parts[i] = string(d)
		}
		fmt.Fprintf(w, "degraded: %s\n", strings.Join(parts, ", "))
	}
}

func joinLines(lines []int) string {
	if len(lines) == 0 {
		return "-"
	}
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = fmt.Sprint(l)
	}
	return strings.Join(parts, ",")
}

func init() {
	analyzeCmd.Flags().StringVarP(&analyzeLanguage, "language", "l", "", "Language hint (default: from file extension)")
	analyzeCmd.Flags().StringVar(&analyzeRepo, "repo", "", "GitHub repository URL to analyze")
	analyzeCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "text", "Output format (text, json)")
	analyzeCmd.Flags().BoolVar(&analyzeNoNarrative, "static-only", false, "Skip the language model phase")
	analyzeCmd.Flags().StringVar(&analyzeFailOn, "fail-on", "", "Exit non-zero when a finding reaches this severity")
	rootCmd.AddCommand(analyzeCmd)
}
