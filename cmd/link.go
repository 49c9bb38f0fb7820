package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/alma-cli/internal/config"
	"github.com/sells-group/alma-cli/internal/resolve"
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Link registered programs to organizations and ALMA interventions",
	Long:  "Runs one linkage batch over every program, writes accepted links, and saves a JSON report of matches and review queues.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		applyLinkFlags(cmd, &cfg.Linkage)

		st, err := openStore(ctx, "link")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		overrides, err := resolve.LoadOverrides(cfg.Linkage.OverridesPath)
		if err != nil {
			return err
		}

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		linker := resolve.NewLinker(st, linkerOptions(cfg.Linkage, overrides, dryRun))

		report, err := linker.Run(ctx)
		if err != nil {
			return eris.Wrap(err, "link")
		}

		if err := resolve.WriteReport(cfg.Linkage.ReportPath, report); err != nil {
			return err
		}
		zap.L().Info("link: report written", zap.String("path", cfg.Linkage.ReportPath))

		if cfg.Linkage.ReviewXLSXPath != "" {
			if err := resolve.WriteReviewWorkbook(cfg.Linkage.ReviewXLSXPath, report); err != nil {
				return err
			}
			zap.L().Info("link: review workbook written", zap.String("path", cfg.Linkage.ReviewXLSXPath))
		}

		return printSummary(os.Stdout, report.Summary)
	},
}

// applyLinkFlags overrides linkage config with any flags set on cmd.
func applyLinkFlags(cmd *cobra.Command, lc *config.LinkageConfig) {
	if cmd.Flags().Changed("report") {
		lc.ReportPath, _ = cmd.Flags().GetString("report")
	}
	if cmd.Flags().Changed("review-xlsx") {
		lc.ReviewXLSXPath, _ = cmd.Flags().GetString("review-xlsx")
	}
	if cmd.Flags().Changed("overrides") {
		lc.OverridesPath, _ = cmd.Flags().GetString("overrides")
	}
}

func linkerOptions(lc config.LinkageConfig, overrides *resolve.OverrideRegistry, dryRun bool) resolve.LinkerOptions {
	return resolve.LinkerOptions{
		Stopwords:        lc.OrgStopwords,
		Thresholds:       resolve.ThresholdsFromConfig(lc.Thresholds),
		Overrides:        overrides,
		WritesPerSecond:  lc.WritesPerSecond,
		OrgReviewSample:  lc.OrgReviewSample,
		LinkReviewSample: lc.LinkReviewSample,
		DryRun:           dryRun,
	}
}

func printSummary(w io.Writer, s resolve.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func init() {
	linkCmd.Flags().Bool("dry-run", false, "compute decisions and the report without writing links")
	linkCmd.Flags().String("report", "", "report output path (default from config)")
	linkCmd.Flags().String("review-xlsx", "", "also write the review queues to this .xlsx file")
	linkCmd.Flags().String("overrides", "", "manual overrides YAML file (default: built-in list)")
	rootCmd.AddCommand(linkCmd)
}
