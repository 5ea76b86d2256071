package services

import (
	"fmt"
	"strconv"
)

// AnswerValue is one element of an assessor's answer for a group. Value holds
// the chosen field id as a string, or the raw text for free-text groups, whose
// FieldID names the group's single schema row.
type AnswerValue struct {
	Value   string    `json:"value"`
	Kind    InputKind `json:"assessment_type_id"`
	FieldID int64     `json:"field_id,omitempty"`
}

// AnswerState holds one answer list per schema group, in GroupSchema order.
type AnswerState [][]AnswerValue

// Clone deep-copies the state so no slice is shared with the receiver.
func (s AnswerState) Clone() AnswerState {
	out := make(AnswerState, len(s))
	for i, vs := range s {
		out[i] = append([]AnswerValue{}, vs...)
	}
	return out
}

func fieldValue(id int64) string { return strconv.FormatInt(id, 10) }

// Initialize seeds the answer state for grouped fields. A single-choice group
// starts with its first option selected; select and multi-valued groups start
// empty; a free-text group starts with one empty text.
func Initialize(groups []FieldGroup) AnswerState {
	state := make(AnswerState, len(groups))
	for i, g := range groups {
		vs := []AnswerValue{}
		switch g.Kind {
		case KindSingleChoice:
			if len(g.Fields) > 0 {
				vs = append(vs, AnswerValue{Value: fieldValue(g.Fields[0].ID), Kind: KindSingleChoice})
			}
		case KindFreeText:
			v := AnswerValue{Kind: KindFreeText}
			if len(g.Fields) > 0 {
				v.FieldID = g.Fields[0].ID
			}
			vs = append(vs, v)
		case KindMultiChoice, KindSingleSelect, KindMultiSelect, KindUnset:
		}
		state[i] = vs
	}
	return state
}

// Update replaces the answers of one group. The result shares no slices with
// state or values; an out-of-range index returns an unchanged copy.
func Update(state AnswerState, group int, values []AnswerValue) AnswerState {
	out := state.Clone()
	if inRange(group, len(out)) {
		out[group] = append([]AnswerValue{}, values...)
	}
	return out
}

// Check toggles one option of a radio or checkbox style group. Unchecking a
// single-choice option clears the group.
func Check(current []AnswerValue, g FieldGroup, fieldID int64, checked bool) ([]AnswerValue, error) {
	if _, ok := g.Field(fieldID); !ok {
		return nil, NewInvalidError(fmt.Sprintf("field %d is not part of group %d", fieldID, g.GroupID))
	}
	v := AnswerValue{Value: fieldValue(fieldID), Kind: g.Kind}
	switch g.Kind {
	case KindSingleChoice:
		if checked {
			return []AnswerValue{v}, nil
		}
		return []AnswerValue{}, nil
	case KindMultiChoice, KindMultiSelect:
		out := append([]AnswerValue{}, current...)
		at := -1
		for i, cur := range out {
			if cur.Value == v.Value {
				at = i
				break
			}
		}
		switch {
		case checked && at < 0:
			out = append(out, v)
		case !checked && at >= 0:
			out = append(out[:at], out[at+1:]...)
		}
		return out, nil
	case KindSingleSelect, KindFreeText, KindUnset:
	}
	return nil, NewInvalidError(fmt.Sprintf("group %d (%s) does not take check actions", g.GroupID, g.Kind))
}

// Choose replaces the selection of a select style group. A single select
// accepts at most one id; a multiselect drops repeated ids.
func Choose(g FieldGroup, fieldIDs []int64) ([]AnswerValue, error) {
	for _, id := range fieldIDs {
		if _, ok := g.Field(id); !ok {
			return nil, NewInvalidError(fmt.Sprintf("field %d is not part of group %d", id, g.GroupID))
		}
	}
	switch g.Kind {
	case KindSingleSelect:
		if len(fieldIDs) > 1 {
			return nil, NewInvalidError(fmt.Sprintf("group %d takes a single selection", g.GroupID))
		}
		out := []AnswerValue{}
		for _, id := range fieldIDs {
			out = append(out, AnswerValue{Value: fieldValue(id), Kind: g.Kind})
		}
		return out, nil
	case KindMultiSelect:
		out := []AnswerValue{}
		seen := map[int64]bool{}
		for _, id := range fieldIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, AnswerValue{Value: fieldValue(id), Kind: g.Kind})
		}
		return out, nil
	case KindSingleChoice, KindMultiChoice, KindFreeText, KindUnset:
	}
	return nil, NewInvalidError(fmt.Sprintf("group %d (%s) does not take choose actions", g.GroupID, g.Kind))
}

// SetText replaces the text of a free-text group.
func SetText(g FieldGroup, text string) ([]AnswerValue, error) {
	if g.Kind != KindFreeText {
		return nil, NewInvalidError(fmt.Sprintf("group %d (%s) does not take text", g.GroupID, g.Kind))
	}
	v := AnswerValue{Value: text, Kind: KindFreeText}
	if len(g.Fields) > 0 {
		v.FieldID = g.Fields[0].ID
	}
	return []AnswerValue{v}, nil
}

const (
	ActionCheck  = "check"
	ActionChoose = "choose"
	ActionText   = "text"
)

// AnswerAction is one assessor interaction with a group, in wire form.
type AnswerAction struct {
	Action   string  `json:"action"`
	FieldID  int64   `json:"field_id,omitempty"`
	Checked  bool    `json:"checked,omitempty"`
	FieldIDs []int64 `json:"field_ids,omitempty"`
	Text     string  `json:"text,omitempty"`
}

// Sheet pairs a grouped schema with the answers given so far.
type Sheet struct {
	Groups []FieldGroup `json:"groups"`
	State  AnswerState  `json:"state"`
}

// NewSheet groups the schema and seeds its answers.
func NewSheet(schema []SchemaField) Sheet {
	groups := GroupSchema(schema)
	return Sheet{Groups: groups, State: Initialize(groups)}
}

// Apply runs one action against a group and returns the next sheet.
func (s Sheet) Apply(group int, a AnswerAction) (Sheet, error) {
	if !inRange(group, len(s.Groups)) || !inRange(group, len(s.State)) {
		return s, NewNotFoundError(fmt.Sprintf("group %d not found", group))
	}
	g := s.Groups[group]
	var (
		values []AnswerValue
		err    error
	)
	switch a.Action {
	case ActionCheck:
		values, err = Check(s.State[group], g, a.FieldID, a.Checked)
	case ActionChoose:
		values, err = Choose(g, a.FieldIDs)
	case ActionText:
		values, err = SetText(g, a.Text)
	default:
		err = NewInvalidError(fmt.Sprintf("unknown action %q", a.Action))
	}
	if err != nil {
		return s, err
	}
	return Sheet{Groups: s.Groups, State: Update(s.State, group, values)}, nil
}

// SameSchema reports whether the sheet was seeded from groups: same group ids,
// kinds and field ids in the same order.
func (s Sheet) SameSchema(groups []FieldGroup) bool {
	if len(s.Groups) != len(groups) {
		return false
	}
	for i, g := range groups {
		have := s.Groups[i]
		if have.GroupID != g.GroupID || have.Kind != g.Kind || len(have.Fields) != len(g.Fields) {
			return false
		}
		for j, f := range g.Fields {
			if have.Fields[j].ID != f.ID {
				return false
			}
		}
	}
	return true
}

// CheckState validates a state built outside the answer engine against its
// groups and returns a normalized copy. Free-text answers get the group's
// field id. Every other value must be a distinct field id of its group, and
// single-valued kinds hold at most one answer. Issues address values by
// group and position.
func CheckState(groups []FieldGroup, state AnswerState) (AnswerState, error) {
	if len(state) != len(groups) {
		return nil, NewInvalidError(fmt.Sprintf("state has %d groups, schema has %d", len(state), len(groups)))
	}
	out := state.Clone()
	issues := []ValidationIssue{}
	for gi, g := range groups {
		if !g.Kind.MultiValued() && len(out[gi]) > 1 {
			issues = append(issues, ValidationIssue{Group: gi, Option: -1, Code: IssueTooManyAnswers,
				Message: fmt.Sprintf("group %d (%s) takes one answer, got %d", g.GroupID, g.Kind, len(out[gi]))})
		}
		seen := map[string]bool{}
		for vi, v := range out[gi] {
			if v.Kind != g.Kind {
				issues = append(issues, ValidationIssue{Group: gi, Option: vi, Code: IssueAnswerKind,
					Message: fmt.Sprintf("group %d is %s, answer is %s", g.GroupID, g.Kind, v.Kind)})
				continue
			}
			if g.Kind == KindFreeText {
				if len(g.Fields) == 0 || (v.FieldID != 0 && v.FieldID != g.Fields[0].ID) {
					issues = append(issues, ValidationIssue{Group: gi, Option: vi, Code: IssueUnknownField,
						Message: fmt.Sprintf("field %d is not part of group %d", v.FieldID, g.GroupID)})
					continue
				}
				out[gi][vi].FieldID = g.Fields[0].ID
				continue
			}
			id, err := strconv.ParseInt(v.Value, 10, 64)
			if _, ok := g.Field(id); err != nil || !ok {
				issues = append(issues, ValidationIssue{Group: gi, Option: vi, Code: IssueUnknownField,
					Message: fmt.Sprintf("%q is not a field of group %d", v.Value, g.GroupID)})
				continue
			}
			if seen[v.Value] {
				issues = append(issues, ValidationIssue{Group: gi, Option: vi, Code: IssueRepeatedAnswer,
					Message: fmt.Sprintf("group %d repeats field %s", g.GroupID, v.Value)})
			}
			seen[v.Value] = true
			out[gi][vi].FieldID = 0
		}
	}
	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	return out, nil
}

// SubmissionField is the wire unit of a submitted answer. Text is set only
// for free-text answers.
type SubmissionField struct {
	Text          *string `json:"text"`
	SchemaFieldID int64   `json:"markup_type_field_id"`
}

type Submission struct {
	Fields []SubmissionField `json:"fields"`
}

// ReferenceSubmission stores an administrator's answer for a markup.
type ReferenceSubmission struct {
	MarkupID int64             `json:"markup_id"`
	Fields   []SubmissionField `json:"fields"`
}

// ToSubmission flattens the state into submission fields. Answers of choice
// kinds whose value is not an integer are left out and reported through an
// *InvariantError next to the fields that did convert.
func ToSubmission(state AnswerState) ([]SubmissionField, error) {
	fields := []SubmissionField{}
	var dropped []CorruptAnswer
	for gi, vs := range state {
		for _, v := range vs {
			if v.Kind == KindFreeText {
				text := v.Value
				fields = append(fields, SubmissionField{Text: &text, SchemaFieldID: v.FieldID})
				continue
			}
			id, err := strconv.ParseInt(v.Value, 10, 64)
			if err != nil {
				dropped = append(dropped, CorruptAnswer{Group: gi, Value: v.Value})
				continue
			}
			fields = append(fields, SubmissionField{SchemaFieldID: id})
		}
	}
	if len(dropped) > 0 {
		return fields, &InvariantError{Dropped: dropped}
	}
	return fields, nil
}
