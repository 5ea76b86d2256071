package services

import (
	"bytes"
	"encoding/csv"
	"sort"
	"strconv"
)

// AssessmentRow is one assessor's answer to a markup, as listed for admins.
type AssessmentRow struct {
	ID          int64             `json:"id"`
	Assessor    string            `json:"assessor"`
	Fields      []SubmissionField `json:"fields"`
	Answers     string            `json:"answers"`
	IsCorrect   bool              `json:"is_correct"`
	IsReference bool              `json:"is_reference"`
}

// SummarizeAssessment fills the derived columns of a row from the schema and
// the markup's reference hash.
func SummarizeAssessment(row AssessmentRow, schema []SchemaField, referenceHash string) AssessmentRow {
	row.Answers = DescribeAnswers(schema, row.Fields)
	row.IsCorrect = MatchesReference(row.Fields, referenceHash)
	return row
}

// ExportAssessmentsCSV renders the assessor table, ordered by assessor then id.
func ExportAssessmentsCSV(rows []AssessmentRow) ([]byte, error) {
	sorted := append([]AssessmentRow(nil), rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Assessor == sorted[j].Assessor {
			return sorted[i].ID < sorted[j].ID
		}
		return sorted[i].Assessor < sorted[j].Assessor
	})
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	_ = w.Write([]string{"assessor", "answers", "is_correct", "is_reference"})
	for _, r := range sorted {
		rec := []string{
			r.Assessor,
			r.Answers,
			strconv.FormatBool(r.IsCorrect),
			strconv.FormatBool(r.IsReference),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
