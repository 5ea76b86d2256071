package services

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestInputKindKeyRoundTrip(t *testing.T) {
	for _, k := range AllInputKinds {
		got, err := ParseInputKind(k.Key())
		if err != nil || got != k {
			t.Fatalf("ParseInputKind(%q) = %v, %v, want %v", k.Key(), got, err, k)
		}
	}
	if k, err := ParseInputKind(""); err != nil || k != KindUnset {
		t.Fatalf("empty key = %v, %v", k, err)
	}
	for _, bad := range []string{"0", "6", "radio", "-1"} {
		_, err := ParseInputKind(bad)
		if err == nil {
			t.Fatalf("ParseInputKind(%q) accepted", bad)
		}
		if !strings.Contains(err.Error(), "want one of 1, 2, 3, 4, 5") {
			t.Fatalf("ParseInputKind(%q) error = %v", bad, err)
		}
	}
}

func TestInputKindWidget(t *testing.T) {
	want := map[InputKind]Widget{
		KindSingleChoice: WidgetRadio,
		KindMultiChoice:  WidgetCheckbox,
		KindSingleSelect: WidgetSelect,
		KindMultiSelect:  WidgetMultiSelect,
		KindFreeText:     WidgetTextInput,
		KindUnset:        WidgetNone,
		InputKind(42):    WidgetNone,
	}
	for k, w := range want {
		if got := k.Widget(); got != w {
			t.Fatalf("%v.Widget() = %q, want %q", k, got, w)
		}
	}
	if !KindMultiSelect.MultiValued() || KindSingleSelect.MultiValued() {
		t.Fatalf("MultiValued mismatch")
	}
}

func TestGroupSchemaOrdersByGroupID(t *testing.T) {
	schema := []SchemaField{
		{ID: 3, Name: "", Label: "Comment", InputKind: KindFreeText, GroupID: 2},
		{ID: 1, Name: "Yes", Label: "Relevant?", InputKind: KindSingleChoice, GroupID: 1},
		{ID: 2, Name: "No", Label: "Relevant?", InputKind: KindSingleChoice, GroupID: 1},
	}
	before := append([]SchemaField(nil), schema...)
	groups := GroupSchema(schema)
	if len(groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(groups))
	}
	if groups[0].GroupID != 1 || groups[0].Widget != WidgetRadio || groups[0].Label != "Relevant?" {
		t.Fatalf("group[0] = %+v", groups[0])
	}
	if ids := []int64{groups[0].Fields[0].ID, groups[0].Fields[1].ID}; !cmp.Equal(ids, []int64{1, 2}) {
		t.Fatalf("group[0] ids = %v, want schema order", ids)
	}
	if groups[1].Kind != KindFreeText {
		t.Fatalf("group[1] kind = %v", groups[1].Kind)
	}
	if diff := cmp.Diff(before, schema); diff != "" {
		t.Fatalf("GroupSchema mutated input:\n%s", diff)
	}
}

func TestCheckSchema(t *testing.T) {
	good := []SchemaField{
		{ID: 1, Name: "a", Label: "L", InputKind: KindMultiChoice, GroupID: 1},
		{ID: 2, Name: "b", Label: "L", InputKind: KindMultiChoice, GroupID: 1},
		{ID: 3, Name: "", Label: "T", InputKind: KindFreeText, GroupID: 2},
	}
	if issues := CheckSchema(good); len(issues) != 0 {
		t.Fatalf("unexpected issues: %+v", issues)
	}

	bad := []SchemaField{
		{ID: 1, Name: "a", Label: "L", InputKind: KindMultiChoice, GroupID: 1},
		{ID: 2, Name: "a", Label: "Other", InputKind: KindSingleChoice, GroupID: 1},
		{ID: 3, Name: "x", Label: "T", InputKind: KindFreeText, GroupID: 2},
	}
	codes := map[IssueCode]bool{}
	for _, is := range CheckSchema(bad) {
		codes[is.Code] = true
	}
	for _, c := range []IssueCode{IssueMixedKind, IssueMixedLabel, IssueDuplicateOption, IssueFreeTextFields} {
		if !codes[c] {
			t.Fatalf("missing issue %s in %v", c, codes)
		}
	}
}

func TestMarkupTypeNullFields(t *testing.T) {
	var mt MarkupType
	if err := json.Unmarshal([]byte(`{"id":4,"name":"Relevance","fields":null}`), &mt); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	fs := mt.FieldsOrEmpty()
	if fs == nil || len(fs) != 0 {
		t.Fatalf("FieldsOrEmpty = %#v, want empty non-nil", fs)
	}
	if got := GroupSchema(fs); len(got) != 0 {
		t.Fatalf("groups = %v", got)
	}
}
