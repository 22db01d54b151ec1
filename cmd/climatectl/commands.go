package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fadilmartias/climate-tracker/internal/bootstrap"
	"github.com/fadilmartias/climate-tracker/internal/client"
	"github.com/fadilmartias/climate-tracker/internal/config"
	"github.com/fadilmartias/climate-tracker/internal/dto"
	"github.com/fadilmartias/climate-tracker/internal/model"
)

// --- submit ---

var submitCmd = &cobra.Command{
	Use:   "submit <pdf>",
	Short: "Upload an assessment PDF for extraction",
	Long: `Upload an assessment PDF for extraction.

Examples:
  climatectl submit ./calgary-2023.pdf
  climatectl submit ./calgary-2023.pdf --wait --interval 5s`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wait, _ := cmd.Flags().GetBool("wait")
		interval, _ := cmd.Flags().GetDuration("interval")
		ceiling, _ := cmd.Flags().GetDuration("timeout")

		document, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		api, err := newAPIClient(cmd, client.WithPollInterval(interval), client.WithWaitCeiling(ceiling))
		if err != nil {
			return err
		}
		submitted, err := api.Submit(cmd.Context(), filepath.Base(args[0]), document)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Submitted job %s\n", submitted.JobID)
		if !wait {
			return nil
		}

		out := cmd.ErrOrStderr()
		status, err := api.Wait(cmd.Context(), submitted.JobID, func(p client.Progress) {
			fmt.Fprintf(out, "\r%-10s %3d%%  %s", p.Status, p.Percent, p.Elapsed.Truncate(time.Second))
		})
		fmt.Fprintln(out)
		if errors.Is(err, client.ErrWaitTimeout) {
			return fmt.Errorf("job %s is still processing; check again with: climatectl status %s", submitted.JobID, submitted.JobID)
		}
		if err != nil {
			return err
		}
		return printStatus(cmd.OutOrStdout(), status)
	},
}

func init() {
	submitCmd.Flags().Bool("wait", false, "poll until the job finishes")
	submitCmd.Flags().Duration("interval", client.DefaultPollInterval, "poll interval with --wait")
	submitCmd.Flags().Duration("timeout", client.DefaultWaitCeiling, "stop waiting after this long")
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status <jobId>",
	Short: "Show an extraction job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid job id %q", args[0])
		}
		api, err := newAPIClient(cmd)
		if err != nil {
			return err
		}
		status, err := api.Status(cmd.Context(), jobID)
		if err != nil {
			return err
		}
		return printStatus(cmd.OutOrStdout(), status)
	},
}

// --- list ---

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your extraction jobs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		page, _ := cmd.Flags().GetInt("page")
		pageSize, _ := cmd.Flags().GetInt("page-size")

		api, err := newAPIClient(cmd)
		if err != nil {
			return err
		}
		jobs, pagination, err := api.List(cmd.Context(), page, pageSize)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, j := range jobs {
			imported := ""
			if j.Imported {
				imported = "imported"
			}
			fmt.Fprintf(out, "%s  %-10s  %s  %s %s\n", j.JobID, j.Status, j.CreatedAt.Format(time.RFC3339), j.FileName, imported)
		}
		if pagination != nil {
			fmt.Fprintf(out, "page %d of %d (%d jobs)\n", pagination.Page, pagination.TotalPages, pagination.TotalItems)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().Int("page", 1, "page number")
	listCmd.Flags().Int("page-size", 20, "jobs per page")
}

// --- import ---

var importCmd = &cobra.Command{
	Use:   "import <jobId>",
	Short: "Import a completed extraction as an assessment",
	Long: `Import a completed extraction as an assessment.

Examples:
  climatectl import 6f1c...
  climatectl import 6f1c... --year 2024 --province BC
  climatectl import 6f1c... --result ./edited.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid job id %q", args[0])
		}

		var req dto.ImportExtractionRequest
		if path, _ := cmd.Flags().GetString("result"); path != "" {
			raw, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("reading result: %w", err)
			}
			req.StructuredResult = &model.StructuredResult{}
			if err := json.Unmarshal(raw, req.StructuredResult); err != nil {
				return fmt.Errorf("parsing result: %w", err)
			}
		}

		overrides := dto.ImportOverrides{}
		set := false
		for flag, target := range map[string]**string{
			"community":    &overrides.CommunityName,
			"province":     &overrides.Province,
			"assessor":     &overrides.AssessorName,
			"organization": &overrides.AssessorOrganization,
		} {
			if cmd.Flags().Changed(flag) {
				v, _ := cmd.Flags().GetString(flag)
				*target = &v
				set = true
			}
		}
		if cmd.Flags().Changed("year") {
			year, _ := cmd.Flags().GetInt("year")
			overrides.AssessmentYear = &year
			set = true
		}
		if set {
			req.Overrides = &overrides
		}

		api, err := newAPIClient(cmd)
		if err != nil {
			return err
		}
		res, err := api.Import(cmd.Context(), jobID, req)
		if err != nil {
			return err
		}
		c := res.CreatedCounts
		fmt.Fprintf(cmd.OutOrStdout(),
			"Imported assessment %s (community %s): %d indicators, %d strengths, %d recommendations\n",
			res.AssessmentID, res.CommunityID, c.IndicatorScores, c.Strengths, c.Recommendations)
		return nil
	},
}

func init() {
	importCmd.Flags().String("community", "", "override the community name")
	importCmd.Flags().Int("year", 0, "override the assessment year")
	importCmd.Flags().String("province", "", "override the province code")
	importCmd.Flags().String("assessor", "", "override the assessor name")
	importCmd.Flags().String("organization", "", "override the assessor organization")
	importCmd.Flags().String("result", "", "import an edited structured result from a JSON file")
}

// --- extract ---

var extractCmd = &cobra.Command{
	Use:   "extract <pdf>",
	Short: "Run text and model extraction locally and print the result",
	Long: `Run text and model extraction locally and print the result.

Uses the same LLM_PROVIDER, LLM_MODEL, PROMPT_PATH and PDF_ENGINE settings as
the server. Nothing is stored.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		document, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading file: %w", err)
		}

		cfg := config.LoadExtractionConfig()
		logger := bootstrap.NewLogger(config.LoadAppConfig())
		text, err := bootstrap.NewTextService(cfg, logger)
		if err != nil {
			return err
		}
		generator, err := bootstrap.NewGenerator(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		engine, err := bootstrap.NewEngine(generator, cfg, logger)
		if err != nil {
			return err
		}

		documentText, err := text.ExtractText(cmd.Context(), document)
		if err != nil {
			return err
		}
		outcome, err := engine.Extract(cmd.Context(), documentText)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "model %s: %d input / %d output tokens, est. $%.4f\n",
			outcome.Model, outcome.Usage.InputTokens, outcome.Usage.OutputTokens, outcome.CostUSD)
		return writeJSON(cmd.OutOrStdout(), outcome.Result)
	},
}

func printStatus(w io.Writer, s *dto.ExtractionStatusResponse) error {
	switch s.Status {
	case model.JobStatusCompleted:
		return writeJSON(w, s.StructuredResult)
	case model.JobStatusError:
		msg := "unknown error"
		if s.ErrorMessage != nil {
			msg = *s.ErrorMessage
		}
		return fmt.Errorf("extraction failed: %s", msg)
	default:
		fmt.Fprintf(w, "%s %s\n", s.JobID, s.Status)
		return nil
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
