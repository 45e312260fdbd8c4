package cli

import (
	"fmt"
	"time"

	"github.com/ppiankov/patentscan/internal/model"
	"github.com/ppiankov/patentscan/internal/sink"
	"github.com/spf13/cobra"
)

var (
	scanOutput  string
	scanFormat  string
	scanNoCache bool
	scanTimeout time.Duration
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan <number>",
	Short: "Fetch and extract a single patent document",
	Long: `Scan resolves one document number against the register and prints the
extracted record as JSON. With --output the record is also written to a file.

Example:
  patentscan scan 2005333
  patentscan scan 2005333 --output doc.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "", "also write the record to this file")
	scanCmd.Flags().StringVar(&scanFormat, "format", "", "output format: csv, xlsx, jsonl (default: from extension)")
	scanCmd.Flags().BoolVar(&scanNoCache, "no-cache", false, "disable cache (force fresh fetch)")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 0, "override the per-document timeout")
}

func runScan(cmd *cobra.Command, args []string) error {
	number := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if scanTimeout > 0 {
		cfg.Concurrency.JobTimeout = scanTimeout
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logger := setupLogger(cfg)

	p := buildPipeline(cfg, scanNoCache)
	job := newRotator(cfg, uint64(time.Now().UnixNano())).Job(number, cfg.DocumentURL(number))

	logger.Debug().Str("number", number).Str("url", job.URL).Msg("scanning")
	outcome := p.Run(cmd.Context(), job)

	if err := writeOutcomeJSON(cmd.OutOrStdout(), outcome); err != nil {
		return err
	}

	if scanOutput != "" {
		s, err := sink.New(outputFormat(scanFormat, scanOutput, cfg.Output.Format), scanOutput)
		if err != nil {
			return err
		}
		if err := s.Write(outcome); err != nil {
			_ = s.Close()
			return err
		}
		if err := s.Close(); err != nil {
			return err
		}
	}

	if outcome.Status == model.StatusFailed {
		return fmt.Errorf("document %s: %w", number, outcome.Err)
	}
	return nil
}

// outputFormat prefers an explicit format, then the file extension, then def
func outputFormat(explicit, path, def string) string {
	if explicit != "" {
		return explicit
	}
	return sink.FormatFromPath(path, def)
}
