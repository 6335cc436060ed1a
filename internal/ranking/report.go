package ranking

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
)

// Results bundles everything one run produced, ready for reporting.
type Results struct {
	RunID        string
	Scorer       string
	Seed         int64
	EnsembleSize int
	UsableFolds  []int
	Targets      []string
	Positives    int
	Unscorable   []string
	Warnings     []string

	Compounds []CompoundScore
	Herbs     []HerbScore // composite order
}

// Reporter writes the run's output files: the compound score table, one
// ranking CSV per strategy, a human-readable summary, and a JSON dump.
type Reporter struct {
	results    *Results
	outputPath string
}

// NewReporter creates a new reporter.
func NewReporter(results *Results, outputPath string) *Reporter {
	return &Reporter{
		results:    results,
		outputPath: outputPath,
	}
}

// GenerateReport generates all report formats.
func (r *Reporter) GenerateReport() error {
	if err := os.MkdirAll(r.outputPath, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := r.generateCompoundScores(); err != nil {
		return err
	}

	for _, s := range Strategies() {
		if err := r.generateRanking(s); err != nil {
			return err
		}
	}

	if err := r.generateSummary(); err != nil {
		return err
	}

	return r.generateJSONReport()
}

// generateCompoundScores writes the per-compound ensemble score table.
func (r *Reporter) generateCompoundScores() error {
	csvPath := filepath.Join(r.outputPath, "compound_scores.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create compound score table: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"InChIKey", "Ensemble Score", "Coverage", "High Quality"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, c := range r.results.Compounds {
		record := []string{
			c.CompoundID,
			fmt.Sprintf("%.6f", c.Ensemble),
			fmt.Sprintf("%d", c.Coverage),
			fmt.Sprintf("%t", c.HighQuality),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	log.Info().Str("file", csvPath).Int("compounds", len(r.results.Compounds)).Msg("Compound score table generated")
	return nil
}

// generateRanking writes one strategy's full herb ranking as CSV.
func (r *Reporter) generateRanking(s Strategy) error {
	csvPath := filepath.Join(r.outputPath, fmt.Sprintf("herb_ranking_%s.csv", s.Key))
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create ranking file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Rank", "Herb ID", "Herb Name", "Strategy Score", "Members",
		"Mean", "Smoothed Mean", "Max", "Median", "Std",
		"Effective Count", "High Quality Count", "Ultra High Count", "Composite",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, h := range OrderBy(r.results.Herbs, s.Value) {
		record := []string{
			fmt.Sprintf("%d", h.Rank),
			h.HerbID,
			h.Name,
			fmt.Sprintf("%.6f", s.Value(h)),
			fmt.Sprintf("%d", h.Members),
			fmt.Sprintf("%.6f", h.Mean),
			fmt.Sprintf("%.6f", h.Bayes),
			fmt.Sprintf("%.6f", h.Max),
			fmt.Sprintf("%.6f", h.Median),
			fmt.Sprintf("%.6f", h.Std),
			fmt.Sprintf("%d", h.EffectiveCount),
			fmt.Sprintf("%d", h.HighQualityCount),
			fmt.Sprintf("%d", h.UltraHighCount),
			fmt.Sprintf("%.6f", h.Composite),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	log.Info().Str("file", csvPath).Str("strategy", s.Key).Msg("Herb ranking generated")
	return nil
}

// generateSummary generates a human-readable summary with the top herbs
// under every strategy and any caveats the run accumulated.
func (r *Reporter) generateSummary() error {
	summaryPath := filepath.Join(r.outputPath, "ranking_summary.txt")
	file, err := os.Create(summaryPath)
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}
	defer file.Close()

	res := r.results

	fmt.Fprintf(file, "HERB RANKING SUMMARY\n")
	fmt.Fprintf(file, "====================\n\n")

	fmt.Fprintf(file, "Run: %s\n", res.RunID)
	fmt.Fprintf(file, "Scorer: %s (seed %d)\n", res.Scorer, res.Seed)
	fmt.Fprintf(file, "Targets: %s\n", joinMax(res.Targets, 20))
	fmt.Fprintf(file, "Positive compounds: %d\n", res.Positives)
	fmt.Fprintf(file, "Usable replicates: %d of %d\n", len(res.UsableFolds), res.EnsembleSize)
	fmt.Fprintf(file, "Scored compounds: %d\n", len(res.Compounds))
	fmt.Fprintf(file, "Ranked herbs: %d\n\n", len(res.Herbs))

	if len(res.Warnings) > 0 || len(res.Unscorable) > 0 {
		fmt.Fprintf(file, "CAVEATS\n")
		fmt.Fprintf(file, "-------\n")
		for _, w := range res.Warnings {
			fmt.Fprintf(file, "- %s\n", w)
		}
		if len(res.Unscorable) > 0 {
			fmt.Fprintf(file, "- %d compounds could not be scored by any replicate: %s\n",
				len(res.Unscorable), joinMax(res.Unscorable, 10))
		}
		fmt.Fprintf(file, "\n")
	}

	for _, s := range Strategies() {
		fmt.Fprintf(file, "TOP 10: %s (%s)\n", s.Title, s.Key)
		fmt.Fprintf(file, "%s\n", s.Description)
		ordered := OrderBy(res.Herbs, s.Value)
		top := len(ordered)
		if top > 10 {
			top = 10
		}
		for _, h := range ordered[:top] {
			fmt.Fprintf(file, "%3d. %s  %s  score=%.4f  members=%d\n",
				h.Rank, h.HerbID, h.Name, s.Value(h), h.Members)
		}
		fmt.Fprintf(file, "\n")
	}

	log.Info().Str("file", summaryPath).Msg("Summary report generated")
	return nil
}

// generateJSONReport generates a JSON report with all data.
func (r *Reporter) generateJSONReport() error {
	jsonPath := filepath.Join(r.outputPath, "ranking_results.json")

	res := r.results
	report := map[string]interface{}{
		"summary": map[string]interface{}{
			"run_id":           res.RunID,
			"scorer":           res.Scorer,
			"seed":             res.Seed,
			"targets":          res.Targets,
			"positives":        res.Positives,
			"ensemble_size":    res.EnsembleSize,
			"usable_folds":     res.UsableFolds,
			"scored_compounds": len(res.Compounds),
			"ranked_herbs":     len(res.Herbs),
			"unscorable":       res.Unscorable,
			"warnings":         res.Warnings,
		},
		"herbs":        res.Herbs,
		"generated_at": time.Now(),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(jsonPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON report: %w", err)
	}

	log.Info().Str("file", jsonPath).Msg("JSON report generated")
	return nil
}

// PrintSummary prints the composite top 10 to console.
func (r *Reporter) PrintSummary() {
	res := r.results
	fmt.Println("\n=== HERB RANKING ===")
	fmt.Printf("Run: %s\n", res.RunID)
	fmt.Printf("Usable replicates: %d of %d\n", len(res.UsableFolds), res.EnsembleSize)
	fmt.Printf("Ranked herbs: %d\n", len(res.Herbs))
	top := len(res.Herbs)
	if top > 10 {
		top = 10
	}
	for _, h := range res.Herbs[:top] {
		fmt.Printf("%3d. %s  %s  composite=%.4f\n", h.Rank, h.HerbID, h.Name, h.Composite)
	}
	fmt.Println("====================")
}

// joinMax joins up to max items, appending an ellipsis count past that.
func joinMax(items []string, max int) string {
	if len(items) == 0 {
		return "(none)"
	}
	out := ""
	for i, it := range items {
		if i == max {
			out += fmt.Sprintf("... (+%d more)", len(items)-max)
			break
		}
		if i > 0 {
			out += ", "
		}
		out += it
	}
	return out
}
