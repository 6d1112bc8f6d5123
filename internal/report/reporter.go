// Package report writes ranked interaction results as a human readable
// summary, a CSV table and a JSON document.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"fast-interactions/internal/storage"

	"github.com/rs/zerolog/log"
)

// Output file names inside the report directory.
const (
	SummaryFile = "interactions_summary.txt"
	CSVFile     = "interactions.csv"
	JSONFile    = "interactions.json"
)

// CSVHeader is the header row of the CSV report.
var CSVHeader = []string{"feature_a", "feature_b", "name_a", "name_b", "strength"}

// Reporter generates reports for one run.
type Reporter struct {
	run        storage.Run
	outputPath string
}

// NewReporter creates a reporter writing into outputPath.
func NewReporter(run storage.Run, outputPath string) *Reporter {
	return &Reporter{run: run, outputPath: outputPath}
}

// GenerateReport writes all report formats.
func (r *Reporter) GenerateReport() error {
	if r.run.Result == nil {
		return fmt.Errorf("report: run %q has no result", r.run.ID)
	}
	if err := os.MkdirAll(r.outputPath, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.writeFile(SummaryFile, r.WriteSummary); err != nil {
		return err
	}
	if err := r.writeFile(CSVFile, r.WriteCSV); err != nil {
		return err
	}
	return r.writeFile(JSONFile, r.WriteJSON)
}

func (r *Reporter) writeFile(name string, write func(io.Writer) error) error {
	path := filepath.Join(r.outputPath, name)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	if err := write(file); err != nil {
		file.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := file.Close(); err != nil {
		return err
	}
	log.Info().Str("file", path).Msg("Report generated")
	return nil
}

func (r *Reporter) featureName(i int) string {
	if names := r.run.Result.FeatureNames; i < len(names) {
		return names[i]
	}
	return strconv.Itoa(i)
}

// WriteSummary writes the human readable summary.
func (r *Reporter) WriteSummary(w io.Writer) error {
	res := r.run.Result

	fmt.Fprintf(w, "INTERACTION RANKING SUMMARY\n")
	fmt.Fprintf(w, "===========================\n\n")
	if r.run.ID != "" {
		fmt.Fprintf(w, "Run: %s\n", r.run.ID)
	}
	if !r.run.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created: %s\n", r.run.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if r.run.Source != "" {
		fmt.Fprintf(w, "Source: %s\n", r.run.Source)
	}
	if r.run.Target != "" {
		fmt.Fprintf(w, "Target: %s\n", r.run.Target)
	}
	fmt.Fprintf(w, "Samples: %d\n", r.run.Samples)
	fmt.Fprintf(w, "Features: %d\n", len(res.FeatureNames))
	fmt.Fprintf(w, "Objective: %s\n", res.Objective)
	switch {
	case res.NClasses < 0:
		fmt.Fprintf(w, "Problem: regression\n")
	default:
		fmt.Fprintf(w, "Problem: classification, %d classes %v\n", res.NClasses, res.Classes)
	}
	fmt.Fprintf(w, "Max bins: %d, min samples per leaf: %d\n\n", r.run.Settings.MaxInteractionBins, r.run.Settings.MinSamplesLeaf)

	fmt.Fprintf(w, "RANKED PAIRS\n")
	fmt.Fprintf(w, "------------\n")
	if len(res.Interactions) == 0 {
		_, err := fmt.Fprintf(w, "(none)\n")
		return err
	}
	for i, in := range res.Interactions {
		_, err := fmt.Fprintf(w, "%3d. %-24s x %-24s %12.6g\n", i+1,
			r.featureName(in.Features[0]), r.featureName(in.Features[1]), in.Strength)
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteCSV writes one row per ranked pair.
func (r *Reporter) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(CSVHeader); err != nil {
		return err
	}
	for _, in := range r.run.Result.Interactions {
		record := []string{
			strconv.Itoa(in.Features[0]),
			strconv.Itoa(in.Features[1]),
			r.featureName(in.Features[0]),
			r.featureName(in.Features[1]),
			strconv.FormatFloat(in.Strength, 'g', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteJSON writes the run and a generation timestamp.
func (r *Reporter) WriteJSON(w io.Writer) error {
	report := map[string]interface{}{
		"run":          r.run,
		"generated_at": time.Now().UTC(),
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
