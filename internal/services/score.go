package services

import (
	"sort"
	"strconv"
	"strings"
)

// AnswerHash is the canonical fingerprint of a submission: the schema field
// ids sorted ascending and joined by ",". Free-text content does not count.
func AnswerHash(fields []SubmissionField) string {
	ids := make([]int64, 0, len(fields))
	for _, f := range fields {
		ids = append(ids, f.SchemaFieldID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}

// MatchesReference reports whether the submission equals a markup's reference
// answer. A markup without a reference never matches.
func MatchesReference(fields []SubmissionField, referenceHash string) bool {
	return referenceHash != "" && AnswerHash(fields) == referenceHash
}

// DescribeAnswers renders a submission as "label: name" pairs joined by ", ".
// Free-text answers show their text; ids missing from the schema show "-".
func DescribeAnswers(schema []SchemaField, fields []SubmissionField) string {
	byID := make(map[int64]SchemaField, len(schema))
	for _, f := range schema {
		if f.ID != 0 {
			byID[f.ID] = f
		}
	}
	parts := make([]string, 0, len(fields))
	for _, sf := range fields {
		f, ok := byID[sf.SchemaFieldID]
		if !ok {
			parts = append(parts, "-")
			continue
		}
		answer := f.Name
		if f.InputKind == KindFreeText && sf.Text != nil {
			answer = *sf.Text
		}
		parts = append(parts, f.Label+": "+answer)
	}
	return strings.Join(parts, ", ")
}

type AccuracyStats struct {
	Total    int     `json:"assessment_count"`
	Correct  int     `json:"correct_assessment_count"`
	Accuracy float64 `json:"accuracy"`
}

// ComputeAccuracy counts graded assessments. Ungraded ones (nil) are skipped.
func ComputeAccuracy(correct []*bool) AccuracyStats {
	var st AccuracyStats
	for _, c := range correct {
		if c == nil {
			continue
		}
		st.Total++
		if *c {
			st.Correct++
		}
	}
	if st.Total > 0 {
		st.Accuracy = float64(st.Correct) / float64(st.Total)
	}
	return st
}
