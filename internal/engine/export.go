package engine

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/audiopcb/veritas/internal/models"
	"github.com/audiopcb/veritas/internal/rules"
)

// csvHeader is the tabular export column order.
var csvHeader = []string{
	"rule_id", "parameter", "original_value", "optimized_value",
	"improvement", "strategy", "metrics", "created_at",
}

// HistoryDocument is the structured export form, keyed by rule id.
type HistoryDocument struct {
	RuleID        string                      `json:"rule_id"`
	ExportedAt    time.Time                   `json:"exported_at"`
	Optimizations []models.OptimizationResult `json:"optimizations"`
}

// ExportHistoryJSON renders a rule's optimization history as a structured
// document. Export and import round-trip losslessly.
func (o *Optimizer) ExportHistoryJSON(ruleID string) ([]byte, error) {
	doc := HistoryDocument{
		RuleID:        ruleID,
		ExportedAt:    time.Now().UTC(),
		Optimizations: o.History(ruleID),
	}
	return json.MarshalIndent(doc, "", "  ")
}

// ImportHistoryJSON replaces a rule's history from a structured document. A
// document tagged with a different rule id than the target is rejected.
func (o *Optimizer) ImportHistoryJSON(ruleID string, data []byte) error {
	var doc HistoryDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse history document: %w", err)
	}
	if doc.RuleID != ruleID {
		return fmt.Errorf("%w: document is for %s, target is %s", rules.ErrRuleMismatch, doc.RuleID, ruleID)
	}
	for _, entry := range doc.Optimizations {
		if entry.RuleID != ruleID {
			return fmt.Errorf("%w: entry is for %s, target is %s", rules.ErrRuleMismatch, entry.RuleID, ruleID)
		}
	}
	o.ReplaceHistory(ruleID, doc.Optimizations)
	return nil
}

// ExportHistoryCSV renders a rule's optimization history as a table. The
// metrics breakdown is carried as a JSON cell so the table round-trips
// without loss.
func (o *Optimizer) ExportHistoryCSV(ruleID string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}

	for _, entry := range o.History(ruleID) {
		metricsCell, err := json.Marshal(entry.Metrics)
		if err != nil {
			return nil, fmt.Errorf("encode metrics: %w", err)
		}
		record := []string{
			entry.RuleID,
			entry.ParameterName,
			formatFloat(entry.OriginalValue),
			formatFloat(entry.OptimizedValue),
			formatFloat(entry.Improvement),
			string(entry.Strategy),
			string(metricsCell),
			entry.CreatedAt.Format(time.RFC3339Nano),
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ImportHistoryCSV replaces a rule's history from a tabular export. Rows
// tagged with a different rule id than the target are rejected.
func (o *Optimizer) ImportHistoryCSV(ruleID string, data []byte) error {
	r := csv.NewReader(bytes.NewReader(data))
	rows, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("parse history table: %w", err)
	}
	if len(rows) == 0 {
		o.ReplaceHistory(ruleID, nil)
		return nil
	}

	entries := make([]models.OptimizationResult, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(csvHeader) {
			return fmt.Errorf("history table row %d: expected %d columns, got %d", i+1, len(csvHeader), len(row))
		}
		if row[0] != ruleID {
			return fmt.Errorf("%w: row is for %s, target is %s", rules.ErrRuleMismatch, row[0], ruleID)
		}

		entry := models.OptimizationResult{
			RuleID:        row[0],
			ParameterName: row[1],
			Strategy:      models.OptimizationStrategy(row[5]),
		}
		if entry.OriginalValue, err = strconv.ParseFloat(row[2], 64); err != nil {
			return fmt.Errorf("history table row %d: original value: %w", i+1, err)
		}
		if entry.OptimizedValue, err = strconv.ParseFloat(row[3], 64); err != nil {
			return fmt.Errorf("history table row %d: optimized value: %w", i+1, err)
		}
		if entry.Improvement, err = strconv.ParseFloat(row[4], 64); err != nil {
			return fmt.Errorf("history table row %d: improvement: %w", i+1, err)
		}
		if err := json.Unmarshal([]byte(row[6]), &entry.Metrics); err != nil {
			return fmt.Errorf("history table row %d: metrics: %w", i+1, err)
		}
		if entry.CreatedAt, err = time.Parse(time.RFC3339Nano, row[7]); err != nil {
			return fmt.Errorf("history table row %d: created at: %w", i+1, err)
		}
		entries = append(entries, entry)
	}

	o.ReplaceHistory(ruleID, entries)
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
