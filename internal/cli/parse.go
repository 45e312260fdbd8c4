package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/patentscan/internal/extract"
	"github.com/ppiankov/patentscan/internal/model"
	"github.com/spf13/cobra"
	"golang.org/x/net/html/charset"
)

var parseNumber string

// parseCmd represents the parse command
var parseCmd = &cobra.Command{
	Use:   "parse <file.html>",
	Short: "Extract a saved register page without network access",
	Long: `Parse runs the field extractor over a page saved to disk and prints the
record as JSON. The encoding is detected from the page's meta tags, so pages
saved straight from the register (windows-1251) work as is.

Example:
  patentscan parse 2005333.html
  patentscan parse page.html --number 2005333`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringVar(&parseNumber, "number", "", "document number (default: file name without extension)")
}

func runParse(cmd *cobra.Command, args []string) error {
	path := args[0]

	html, err := readPage(path)
	if err != nil {
		return err
	}

	number := parseNumber
	if number == "" {
		number = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	outcome := extract.NewExtractor().ExtractHTML(html, number)
	if err := writeOutcomeJSON(cmd.OutOrStdout(), outcome); err != nil {
		return err
	}
	if outcome.Status == model.StatusFailed {
		return fmt.Errorf("document %s: %w", number, outcome.Err)
	}
	return nil
}

// readPage reads a saved page and decodes it to UTF-8
func readPage(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	defer func() { _ = f.Close() }()

	r, err := charset.NewReader(f, "text/html")
	if err != nil {
		return "", fmt.Errorf("decode page: %w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}
	return string(data), nil
}
