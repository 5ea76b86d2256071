package services

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// InputKind is the upstream assessment_type_id of a schema group.
type InputKind int

const (
	KindUnset        InputKind = 0
	KindSingleChoice InputKind = 1
	KindMultiChoice  InputKind = 2
	KindSingleSelect InputKind = 3
	KindMultiSelect  InputKind = 4
	KindFreeText     InputKind = 5
)

// AllInputKinds lists the kinds an editor may offer, in menu order.
var AllInputKinds = []InputKind{KindSingleChoice, KindMultiChoice, KindSingleSelect, KindMultiSelect, KindFreeText}

func (k InputKind) Valid() bool { return k >= KindSingleChoice && k <= KindFreeText }

func (k InputKind) String() string {
	switch k {
	case KindUnset:
		return "unset"
	case KindSingleChoice:
		return "radio"
	case KindMultiChoice:
		return "checkbox"
	case KindSingleSelect:
		return "select"
	case KindMultiSelect:
		return "multiselect"
	case KindFreeText:
		return "text"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Key is the editor-form representation of the kind ("1".."5", "" if unset).
func (k InputKind) Key() string {
	if k == KindUnset {
		return ""
	}
	return strconv.Itoa(int(k))
}

// ParseInputKind is the inverse of Key. Unknown values are an error; the empty
// string is KindUnset.
func ParseInputKind(s string) (InputKind, error) {
	if s == "" {
		return KindUnset, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || !InputKind(n).Valid() {
		keys := make([]string, len(AllInputKinds))
		for i, k := range AllInputKinds {
			keys[i] = k.Key()
		}
		return KindUnset, fmt.Errorf("unknown input kind %q (want one of %s)", s, strings.Join(keys, ", "))
	}
	return InputKind(n), nil
}

// MultiValued reports whether a group of this kind may hold several answers.
func (k InputKind) MultiValued() bool {
	switch k {
	case KindMultiChoice, KindMultiSelect:
		return true
	case KindUnset, KindSingleChoice, KindSingleSelect, KindFreeText:
		return false
	}
	return false
}

// Widget names the input control rendered for a kind.
type Widget string

const (
	WidgetRadio       Widget = "radio"
	WidgetCheckbox    Widget = "checkbox"
	WidgetSelect      Widget = "select"
	WidgetMultiSelect Widget = "multiselect"
	WidgetTextInput   Widget = "text"
	WidgetNone        Widget = ""
)

func (k InputKind) Widget() Widget {
	switch k {
	case KindSingleChoice:
		return WidgetRadio
	case KindMultiChoice:
		return WidgetCheckbox
	case KindSingleSelect:
		return WidgetSelect
	case KindMultiSelect:
		return WidgetMultiSelect
	case KindFreeText:
		return WidgetTextInput
	case KindUnset:
		return WidgetNone
	}
	return WidgetNone
}

// SchemaField is one persisted row of a markup type. ID is 0 until the
// upstream assigns one. Name is the option label, "" for free text.
type SchemaField struct {
	ID        int64     `json:"id,omitempty"`
	Name      string    `json:"name"`
	Label     string    `json:"label"`
	InputKind InputKind `json:"assessment_type_id"`
	GroupID   int       `json:"group_id"`
}

// MarkupType is the upstream schema document. Fields may arrive as null.
type MarkupType struct {
	ID      int64         `json:"id"`
	BatchID *int64        `json:"batch_id,omitempty"`
	ChildID *int64        `json:"child_id,omitempty"`
	Name    string        `json:"name"`
	Fields  []SchemaField `json:"fields"`
}

// FieldsOrEmpty returns the schema rows, treating a null list as empty.
func (m MarkupType) FieldsOrEmpty() []SchemaField {
	if m.Fields == nil {
		return []SchemaField{}
	}
	return m.Fields
}

// FieldGroup is one question of a schema as rendered for an assessor. Kind
// and Label come from the group's first field.
type FieldGroup struct {
	GroupID int           `json:"group_id"`
	Kind    InputKind     `json:"assessment_type_id"`
	Widget  Widget        `json:"widget"`
	Label   string        `json:"label"`
	Fields  []SchemaField `json:"fields"`
}

// Field finds a field of the group by id.
func (g FieldGroup) Field(id int64) (SchemaField, bool) {
	for _, f := range g.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return SchemaField{}, false
}

// GroupSchema projects schema rows into groups ordered by ascending group id,
// keeping schema order inside each group. It never modifies its input.
func GroupSchema(fields []SchemaField) []FieldGroup {
	index := map[int]int{}
	groups := []FieldGroup{}
	for _, f := range fields {
		i, ok := index[f.GroupID]
		if !ok {
			i = len(groups)
			index[f.GroupID] = i
			groups = append(groups, FieldGroup{
				GroupID: f.GroupID,
				Kind:    f.InputKind,
				Widget:  f.InputKind.Widget(),
				Label:   f.Label,
			})
		}
		groups[i].Fields = append(groups[i].Fields, f)
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].GroupID < groups[j].GroupID })
	return groups
}

// CheckSchema reports rows breaking the per-group invariants. Issues address
// groups by their position in GroupSchema's output.
func CheckSchema(fields []SchemaField) []ValidationIssue {
	issues := []ValidationIssue{}
	for gi, g := range GroupSchema(fields) {
		seen := map[string]bool{}
		for oi, f := range g.Fields {
			if f.InputKind != g.Kind {
				issues = append(issues, ValidationIssue{Group: gi, Option: oi, Code: IssueMixedKind,
					Message: fmt.Sprintf("group %d mixes input kinds %s and %s", g.GroupID, g.Kind, f.InputKind)})
			}
			if f.Label != g.Label {
				issues = append(issues, ValidationIssue{Group: gi, Option: oi, Code: IssueMixedLabel,
					Message: fmt.Sprintf("group %d has differing labels", g.GroupID)})
			}
			if g.Kind == KindFreeText {
				continue
			}
			if seen[f.Name] {
				issues = append(issues, ValidationIssue{Group: gi, Option: oi, Code: IssueDuplicateOption,
					Message: fmt.Sprintf("group %d repeats option %q", g.GroupID, f.Name)})
			}
			seen[f.Name] = true
		}
		if g.Kind == KindFreeText && (len(g.Fields) != 1 || g.Fields[0].Name != "") {
			issues = append(issues, ValidationIssue{Group: gi, Option: -1, Code: IssueFreeTextFields,
				Message: fmt.Sprintf("free-text group %d must hold exactly one unnamed field", g.GroupID)})
		}
	}
	return issues
}
