package services

import (
	"fmt"
	"strings"
)

// SchemaGroup is one question as an administrator edits it. Kind holds the
// InputKind key ("1".."5"), or "" until chosen.
type SchemaGroup struct {
	Kind    string   `json:"type" yaml:"type"`
	Label   string   `json:"label" yaml:"label"`
	Options []string `json:"options" yaml:"options"`
}

// SchemaForm is the whole editor state: the schema title plus its groups.
type SchemaForm struct {
	Name   string        `json:"name" yaml:"name"`
	Groups []SchemaGroup `json:"groups" yaml:"groups"`
}

// SchemaRequest is the create/update body the upstream expects.
type SchemaRequest struct {
	Name   string        `json:"name"`
	Fields []SchemaField `json:"fields"`
}

// ToEditorForm inverts Flatten. Groups come out in ascending group id order,
// options in schema order; a free-text group gets the single option "".
func ToEditorForm(schema []SchemaField) []SchemaGroup {
	grouped := GroupSchema(schema)
	out := make([]SchemaGroup, 0, len(grouped))
	for _, g := range grouped {
		sg := SchemaGroup{Kind: g.Kind.Key(), Label: g.Label, Options: make([]string, 0, len(g.Fields))}
		if g.Kind == KindFreeText {
			sg.Options = append(sg.Options, "")
		} else {
			for _, f := range g.Fields {
				sg.Options = append(sg.Options, f.Name)
			}
		}
		out = append(out, sg)
	}
	return out
}

// Flatten turns editor groups into schema rows numbered 1..n by position.
// Unparseable kinds flatten as KindUnset; run Validate first.
func Flatten(groups []SchemaGroup) []SchemaField {
	out := []SchemaField{}
	for i, g := range groups {
		gid := i + 1
		kind, _ := ParseInputKind(g.Kind)
		if kind == KindFreeText {
			out = append(out, SchemaField{Name: "", Label: g.Label, InputKind: KindFreeText, GroupID: gid})
			continue
		}
		for _, opt := range g.Options {
			out = append(out, SchemaField{Name: opt, Label: g.Label, InputKind: kind, GroupID: gid})
		}
	}
	return out
}

// Validate lists every user-correctable problem in the form. An empty result
// means Flatten's output satisfies the schema invariants.
func Validate(form SchemaForm) []ValidationIssue {
	issues := []ValidationIssue{}
	if strings.TrimSpace(form.Name) == "" {
		issues = append(issues, ValidationIssue{Group: -1, Option: -1, Code: IssueEmptyName, Message: "schema name is required"})
	}
	for gi, g := range form.Groups {
		if g.Kind == "" {
			issues = append(issues, ValidationIssue{Group: gi, Option: -1, Code: IssueMissingKind,
				Message: fmt.Sprintf("group %d has no input kind", gi+1)})
			continue
		}
		kind, err := ParseInputKind(g.Kind)
		if err != nil {
			issues = append(issues, ValidationIssue{Group: gi, Option: -1, Code: IssueUnknownKind,
				Message: fmt.Sprintf("group %d: %v", gi+1, err)})
			continue
		}
		if kind == KindFreeText {
			for oi, opt := range g.Options {
				if opt != "" {
					issues = append(issues, ValidationIssue{Group: gi, Option: oi, Code: IssueFreeTextFields,
						Message: fmt.Sprintf("free-text group %d has stray option %q", gi+1, opt)})
				}
			}
			continue
		}
		if len(g.Options) == 0 {
			issues = append(issues, ValidationIssue{Group: gi, Option: -1, Code: IssueNoOptions,
				Message: fmt.Sprintf("group %d has no options", gi+1)})
			continue
		}
		seen := map[string]bool{}
		for oi, opt := range g.Options {
			if strings.TrimSpace(opt) == "" {
				issues = append(issues, ValidationIssue{Group: gi, Option: oi, Code: IssueEmptyOption,
					Message: fmt.Sprintf("group %d option %d has no text", gi+1, oi+1)})
				continue
			}
			if seen[opt] {
				issues = append(issues, ValidationIssue{Group: gi, Option: oi, Code: IssueDuplicateOption,
					Message: fmt.Sprintf("group %d repeats option %q", gi+1, opt)})
			}
			seen[opt] = true
		}
	}
	return issues
}

// Request validates the form and flattens it. Nothing is returned when any
// check fails.
func (f SchemaForm) Request() (SchemaRequest, error) {
	if issues := Validate(f); len(issues) > 0 {
		return SchemaRequest{}, &ValidationError{Issues: issues}
	}
	return SchemaRequest{Name: strings.TrimSpace(f.Name), Fields: Flatten(f.Groups)}, nil
}

// CarryFieldIDs copies ids from prev onto rows of next that keep the same
// group id, name and kind. Each previous id is used at most once.
func CarryFieldIDs(prev, next []SchemaField) []SchemaField {
	type fieldKey struct {
		group int
		name  string
		kind  InputKind
	}
	pool := map[fieldKey][]int64{}
	for _, f := range prev {
		if f.ID == 0 {
			continue
		}
		k := fieldKey{f.GroupID, f.Name, f.InputKind}
		pool[k] = append(pool[k], f.ID)
	}
	out := make([]SchemaField, len(next))
	for i, f := range next {
		k := fieldKey{f.GroupID, f.Name, f.InputKind}
		if ids := pool[k]; len(ids) > 0 && f.ID == 0 {
			f.ID = ids[0]
			pool[k] = ids[1:]
		}
		out[i] = f
	}
	return out
}

func cloneGroups(groups []SchemaGroup) []SchemaGroup {
	out := make([]SchemaGroup, len(groups))
	for i, g := range groups {
		out[i] = SchemaGroup{Kind: g.Kind, Label: g.Label, Options: append([]string(nil), g.Options...)}
		if g.Options != nil && out[i].Options == nil {
			out[i].Options = []string{}
		}
	}
	return out
}

func inRange(i, n int) bool { return i >= 0 && i < n }

func move[T any](s []T, from, to int) []T {
	if !inRange(from, len(s)) || !inRange(to, len(s)) || from == to {
		return s
	}
	v := s[from]
	s = append(s[:from], s[from+1:]...)
	s = append(s[:to], append([]T{v}, s[to:]...)...)
	return s
}

// The editing operations below never touch their input. Each returns a fresh
// deep copy; indices out of range yield an unchanged copy.

func AddGroup(groups []SchemaGroup) []SchemaGroup {
	return append(cloneGroups(groups), SchemaGroup{Options: []string{""}})
}

func DeleteGroup(groups []SchemaGroup, g int) []SchemaGroup {
	out := cloneGroups(groups)
	if !inRange(g, len(out)) {
		return out
	}
	return append(out[:g], out[g+1:]...)
}

func MoveGroup(groups []SchemaGroup, from, to int) []SchemaGroup {
	return move(cloneGroups(groups), from, to)
}

func AddOption(groups []SchemaGroup, g int) []SchemaGroup {
	out := cloneGroups(groups)
	if inRange(g, len(out)) {
		out[g].Options = append(out[g].Options, "")
	}
	return out
}

func DeleteOption(groups []SchemaGroup, g, o int) []SchemaGroup {
	out := cloneGroups(groups)
	if inRange(g, len(out)) && inRange(o, len(out[g].Options)) {
		out[g].Options = append(out[g].Options[:o], out[g].Options[o+1:]...)
	}
	return out
}

func MoveOption(groups []SchemaGroup, g, from, to int) []SchemaGroup {
	out := cloneGroups(groups)
	if inRange(g, len(out)) {
		out[g].Options = move(out[g].Options, from, to)
	}
	return out
}

func EditOption(groups []SchemaGroup, g, o int, text string) []SchemaGroup {
	out := cloneGroups(groups)
	if inRange(g, len(out)) && inRange(o, len(out[g].Options)) {
		out[g].Options[o] = text
	}
	return out
}

func EditLabel(groups []SchemaGroup, g int, label string) []SchemaGroup {
	out := cloneGroups(groups)
	if inRange(g, len(out)) {
		out[g].Label = label
	}
	return out
}

// SetKind changes a group's input kind. Switching to free text collapses the
// options to the single unnamed one.
func SetKind(groups []SchemaGroup, g int, kind string) []SchemaGroup {
	out := cloneGroups(groups)
	if !inRange(g, len(out)) {
		return out
	}
	out[g].Kind = kind
	if kind == KindFreeText.Key() {
		out[g].Options = []string{""}
	}
	return out
}

// EditOp is one editor action in wire form.
type EditOp struct {
	Op     string `json:"op"`
	Group  int    `json:"group"`
	Option int    `json:"option"`
	To     int    `json:"to"`
	Text   string `json:"text"`
}

const (
	OpAddGroup     = "add_group"
	OpDeleteGroup  = "delete_group"
	OpMoveGroup    = "move_group"
	OpAddOption    = "add_option"
	OpDeleteOption = "delete_option"
	OpMoveOption   = "move_option"
	OpEditOption   = "edit_option"
	OpEditLabel    = "edit_label"
	OpSetKind      = "set_kind"
	OpRename       = "rename"
)

// Apply returns the form with op applied. The receiver is left untouched.
func (f SchemaForm) Apply(op EditOp) (SchemaForm, error) {
	next := SchemaForm{Name: f.Name}
	switch op.Op {
	case OpAddGroup:
		next.Groups = AddGroup(f.Groups)
	case OpDeleteGroup:
		next.Groups = DeleteGroup(f.Groups, op.Group)
	case OpMoveGroup:
		next.Groups = MoveGroup(f.Groups, op.Group, op.To)
	case OpAddOption:
		next.Groups = AddOption(f.Groups, op.Group)
	case OpDeleteOption:
		next.Groups = DeleteOption(f.Groups, op.Group, op.Option)
	case OpMoveOption:
		next.Groups = MoveOption(f.Groups, op.Group, op.Option, op.To)
	case OpEditOption:
		next.Groups = EditOption(f.Groups, op.Group, op.Option, op.Text)
	case OpEditLabel:
		next.Groups = EditLabel(f.Groups, op.Group, op.Text)
	case OpSetKind:
		if _, err := ParseInputKind(op.Text); err != nil {
			return f, NewInvalidError(err.Error())
		}
		next.Groups = SetKind(f.Groups, op.Group, op.Text)
	case OpRename:
		next.Name = op.Text
		next.Groups = cloneGroups(f.Groups)
	default:
		return f, NewInvalidError(fmt.Sprintf("unknown editor operation %q", op.Op))
	}
	return next, nil
}
