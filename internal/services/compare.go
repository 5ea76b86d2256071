package services

import (
	"sort"
	"strconv"
	"strings"
)

// GroupKey identifies a comparison column: a digit 0-9, or Ungrouped.
type GroupKey int

const Ungrouped GroupKey = -1

func (k GroupKey) String() string {
	if k == Ungrouped {
		return "Ungrouped"
	}
	return strconv.Itoa(int(k))
}

// FieldGroups is the result of grouping descriptors by their group digit.
// Keys lists numeric groups ascending, followed by Ungrouped when present.
type FieldGroups struct {
	Keys    []GroupKey
	ByGroup map[GroupKey][]FieldDescriptor
}

func (g FieldGroups) Numeric() []GroupKey {
	out := make([]GroupKey, 0, len(g.Keys))
	for _, k := range g.Keys {
		if k != Ungrouped {
			out = append(out, k)
		}
	}
	return out
}

// GroupFields buckets fields by group digit, preserving each field's relative
// order inside its bucket.
func GroupFields(fields []FieldDescriptor) FieldGroups {
	out := FieldGroups{ByGroup: map[GroupKey][]FieldDescriptor{}}
	for _, f := range fields {
		key := Ungrouped
		if f.Group != nil {
			key = GroupKey(*f.Group)
		}
		if _, seen := out.ByGroup[key]; !seen {
			out.Keys = append(out.Keys, key)
		}
		out.ByGroup[key] = append(out.ByGroup[key], f)
	}
	sort.SliceStable(out.Keys, func(i, j int) bool {
		a, b := out.Keys[i], out.Keys[j]
		if a == Ungrouped || b == Ungrouped {
			return b == Ungrouped && a != Ungrouped
		}
		return a < b
	})
	return out
}

type Layout string

const (
	LayoutList Layout = "list"
	LayoutGrid Layout = "grid"
)

// ViewRow is one line of the comparison grid. Cells line up with
// RecordView.Columns; a nil cell renders empty. Shared rows carry an
// ungrouped field repeated across every column.
type ViewRow struct {
	Label  string             `json:"label"`
	Shared bool               `json:"shared,omitempty"`
	Cells  []*FieldDescriptor `json:"cells"`
}

// RecordView is what an assessor sees for one item.
type RecordView struct {
	Layout  Layout            `json:"layout"`
	Fields  []FieldDescriptor `json:"fields,omitempty"`
	Columns []GroupKey        `json:"columns,omitempty"`
	Labels  []string          `json:"labels,omitempty"`
	Rows    []ViewRow         `json:"rows,omitempty"`
}

// BuildView lays out decoded fields. Single batches, and comparison batches
// without a single numeric group, render as a flat list in source order.
func BuildView(fields []FieldDescriptor, batch BatchType) RecordView {
	if !batch.IsComparison() {
		return RecordView{Layout: LayoutList, Fields: fields}
	}
	groups := GroupFields(fields)
	columns := groups.Numeric()
	if len(columns) == 0 {
		return RecordView{Layout: LayoutList, Fields: fields}
	}

	shared := groups.ByGroup[Ungrouped]
	depth := 0
	for _, k := range columns {
		if n := len(groups.ByGroup[k]); n > depth {
			depth = n
		}
	}

	view := RecordView{Layout: LayoutGrid, Columns: columns}
	for i := range shared {
		f := shared[i]
		row := ViewRow{Label: f.Key, Shared: true, Cells: make([]*FieldDescriptor, len(columns))}
		for c := range columns {
			row.Cells[c] = &f
		}
		view.Rows = append(view.Rows, row)
	}
	for i := 0; i < depth; i++ {
		row := ViewRow{Cells: make([]*FieldDescriptor, len(columns))}
		for c, k := range columns {
			bucket := groups.ByGroup[k]
			if i >= len(bucket) {
				continue
			}
			f := bucket[i]
			row.Cells[c] = &f
			if row.Label == "" {
				row.Label = StripGroupDigits(f.Key)
			}
		}
		view.Labels = append(view.Labels, row.Label)
		view.Rows = append(view.Rows, row)
	}
	return view
}

// StripGroupDigits removes the trailing digits naming a comparison column,
// so query1 and query2 share the label query.
func StripGroupDigits(key string) string {
	return strings.TrimRight(key, "0123456789")
}
