package services

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func strp(s string) *string { return &s }

func answerSchema() []SchemaField {
	return []SchemaField{
		{ID: 10, Name: "Relevant", Label: "Relevant?", InputKind: KindSingleChoice, GroupID: 1},
		{ID: 11, Name: "Irrelevant", Label: "Relevant?", InputKind: KindSingleChoice, GroupID: 1},
		{ID: 20, Name: "news", Label: "Tags", InputKind: KindMultiChoice, GroupID: 2},
		{ID: 21, Name: "shop", Label: "Tags", InputKind: KindMultiChoice, GroupID: 2},
		{ID: 30, Name: "en", Label: "Language", InputKind: KindSingleSelect, GroupID: 3},
		{ID: 31, Name: "de", Label: "Language", InputKind: KindSingleSelect, GroupID: 3},
		{ID: 40, Name: "a", Label: "Topics", InputKind: KindMultiSelect, GroupID: 4},
		{ID: 41, Name: "b", Label: "Topics", InputKind: KindMultiSelect, GroupID: 4},
		{ID: 50, Name: "", Label: "Comment", InputKind: KindFreeText, GroupID: 5},
	}
}

func TestInitialize(t *testing.T) {
	got := Initialize(GroupSchema(answerSchema()))
	want := AnswerState{
		{{Value: "10", Kind: KindSingleChoice}},
		{},
		{},
		{},
		{{Value: "", Kind: KindFreeText, FieldID: 50}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Initialize mismatch (-want +got):\n%s", diff)
	}
}

func TestInitializeEmptySingleChoice(t *testing.T) {
	got := Initialize([]FieldGroup{{GroupID: 1, Kind: KindSingleChoice}})
	if len(got) != 1 || len(got[0]) != 0 {
		t.Fatalf("Initialize(empty radio) = %v", got)
	}
}

func TestUpdateIsPure(t *testing.T) {
	state := AnswerState{
		{{Value: "10", Kind: KindSingleChoice}},
		{{Value: "20", Kind: KindMultiChoice}},
	}
	snapshot := state.Clone()
	values := []AnswerValue{{Value: "21", Kind: KindMultiChoice}}

	first := Update(state, 1, values)
	second := Update(state, 1, values)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("Update not deterministic:\n%s", diff)
	}
	if diff := cmp.Diff(snapshot, state); diff != "" {
		t.Fatalf("Update mutated state:\n%s", diff)
	}

	first[0][0].Value = "mutated"
	first[1][0].Value = "mutated"
	values[0].Value = "mutated"
	if diff := cmp.Diff(snapshot, state); diff != "" {
		t.Fatalf("Update result aliases state:\n%s", diff)
	}
	if second[1][0].Value != "21" {
		t.Fatalf("Update result aliases values: %v", second)
	}
	if got := Update(state, 5, values); !cmp.Equal(got, snapshot) {
		t.Fatalf("out of range Update = %v", got)
	}
}

func TestCheckSingleChoiceCanBeCleared(t *testing.T) {
	g := GroupSchema(answerSchema())[0]
	got, err := Check([]AnswerValue{{Value: "10", Kind: KindSingleChoice}}, g, 11, true)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if diff := cmp.Diff([]AnswerValue{{Value: "11", Kind: KindSingleChoice}}, got); diff != "" {
		t.Fatalf("select mismatch:\n%s", diff)
	}
	got, err = Check(got, g, 11, false)
	if err != nil || len(got) != 0 {
		t.Fatalf("deselect = %v, %v, want empty", got, err)
	}
}

func TestCheckMultiChoiceIsASet(t *testing.T) {
	g := GroupSchema(answerSchema())[1]
	var cur []AnswerValue
	for _, step := range []struct {
		id      int64
		checked bool
	}{{20, true}, {21, true}, {20, true}, {20, false}, {20, false}} {
		next, err := Check(cur, g, step.id, step.checked)
		if err != nil {
			t.Fatalf("Check(%d,%v): %v", step.id, step.checked, err)
		}
		cur = next
	}
	if diff := cmp.Diff([]AnswerValue{{Value: "21", Kind: KindMultiChoice}}, cur); diff != "" {
		t.Fatalf("multi choice mismatch:\n%s", diff)
	}
}

func TestCheckRejectsForeignFieldAndKind(t *testing.T) {
	groups := GroupSchema(answerSchema())
	if _, err := Check(nil, groups[0], 20, true); err == nil {
		t.Fatalf("field of another group accepted")
	}
	if _, err := Check(nil, groups[2], 30, true); err == nil {
		t.Fatalf("check accepted on single select")
	}
}

func TestChoose(t *testing.T) {
	groups := GroupSchema(answerSchema())
	got, err := Choose(groups[2], []int64{31})
	if err != nil || !cmp.Equal(got, []AnswerValue{{Value: "31", Kind: KindSingleSelect}}) {
		t.Fatalf("single select = %v, %v", got, err)
	}
	if _, err := Choose(groups[2], []int64{30, 31}); err == nil {
		t.Fatalf("two values accepted by single select")
	}
	got, err = Choose(groups[3], []int64{41, 40, 41})
	want := []AnswerValue{{Value: "41", Kind: KindMultiSelect}, {Value: "40", Kind: KindMultiSelect}}
	if err != nil || !cmp.Equal(got, want) {
		t.Fatalf("multiselect = %v, %v", got, err)
	}
	if got, err := Choose(groups[2], nil); err != nil || len(got) != 0 {
		t.Fatalf("clear select = %v, %v", got, err)
	}
	if _, err := Choose(groups[0], []int64{10}); err == nil {
		t.Fatalf("choose accepted on radio")
	}
}

func TestSetText(t *testing.T) {
	groups := GroupSchema(answerSchema())
	got, err := SetText(groups[4], "looks fine")
	if err != nil {
		t.Fatalf("SetText: %v", err)
	}
	if diff := cmp.Diff([]AnswerValue{{Value: "looks fine", Kind: KindFreeText, FieldID: 50}}, got); diff != "" {
		t.Fatalf("SetText mismatch:\n%s", diff)
	}
	if _, err := SetText(groups[0], "x"); err == nil {
		t.Fatalf("text accepted on radio")
	}
}

func TestSheetApply(t *testing.T) {
	sheet := NewSheet(answerSchema())
	next, err := sheet.Apply(1, AnswerAction{Action: ActionCheck, FieldID: 21, Checked: true})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(sheet.State[1]) != 0 || len(next.State[1]) != 1 {
		t.Fatalf("state before %v after %v", sheet.State[1], next.State[1])
	}
	if _, err := sheet.Apply(9, AnswerAction{Action: ActionText}); err == nil {
		t.Fatalf("missing group accepted")
	} else if se, ok := AsServiceError(err); !ok || se.Code != ErrorNotFound {
		t.Fatalf("err = %v, want not_found", err)
	}
	if _, err := sheet.Apply(0, AnswerAction{Action: "shout"}); err == nil {
		t.Fatalf("unknown action accepted")
	}
}

func TestToSubmission(t *testing.T) {
	got, err := ToSubmission(AnswerState{{{Value: "42", Kind: KindSingleChoice}}})
	if err != nil {
		t.Fatalf("ToSubmission: %v", err)
	}
	if diff := cmp.Diff([]SubmissionField{{Text: nil, SchemaFieldID: 42}}, got); diff != "" {
		t.Fatalf("choice mismatch:\n%s", diff)
	}

	got, err = ToSubmission(AnswerState{{{Value: "hello", Kind: KindFreeText, FieldID: 7}}})
	if err != nil {
		t.Fatalf("ToSubmission: %v", err)
	}
	if diff := cmp.Diff([]SubmissionField{{Text: strp("hello"), SchemaFieldID: 7}}, got); diff != "" {
		t.Fatalf("free text mismatch:\n%s", diff)
	}

	got, err = ToSubmission(AnswerState{{{Value: "hi", Kind: KindFreeText}}})
	if err != nil || got[0].SchemaFieldID != 0 {
		t.Fatalf("free text without field id = %v, %v", got, err)
	}
}

func TestToSubmissionReportsCorruptAnswers(t *testing.T) {
	state := AnswerState{
		{{Value: "abc", Kind: KindSingleChoice}},
		{{Value: "5", Kind: KindMultiChoice}, {Value: "", Kind: KindMultiChoice}},
	}
	got, err := ToSubmission(state)
	ie, ok := AsInvariantError(err)
	if !ok {
		t.Fatalf("err = %v, want InvariantError", err)
	}
	if diff := cmp.Diff([]CorruptAnswer{{Group: 0, Value: "abc"}, {Group: 1, Value: ""}}, ie.Dropped); diff != "" {
		t.Fatalf("dropped mismatch:\n%s", diff)
	}
	if diff := cmp.Diff([]SubmissionField{{SchemaFieldID: 5}}, got); diff != "" {
		t.Fatalf("kept fields mismatch:\n%s", diff)
	}
}

func TestAnswerFlowEndToEnd(t *testing.T) {
	form := SchemaForm{Name: "Relevance", Groups: []SchemaGroup{
		{Kind: KindSingleChoice.Key(), Label: "Is it relevant?", Options: []string{"Relevant", "Irrelevant"}},
		{Kind: KindFreeText.Key(), Label: "Comment", Options: []string{""}},
	}}
	req, err := form.Request()
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if len(req.Fields) != 3 {
		t.Fatalf("fields = %d, want 3", len(req.Fields))
	}
	gids := []int{req.Fields[0].GroupID, req.Fields[1].GroupID, req.Fields[2].GroupID}
	if !cmp.Equal(gids, []int{1, 1, 2}) {
		t.Fatalf("group ids = %v", gids)
	}

	// ids as the upstream would assign them
	stored := append([]SchemaField(nil), req.Fields...)
	for i := range stored {
		stored[i].ID = int64(101 + i)
	}
	firstOption, secondOption, freeText := stored[0].ID, stored[1].ID, stored[2].ID

	sheet := NewSheet(stored)
	wantInit := AnswerState{
		{{Value: "101", Kind: KindSingleChoice}},
		{{Value: "", Kind: KindFreeText, FieldID: freeText}},
	}
	if diff := cmp.Diff(wantInit, sheet.State); diff != "" {
		t.Fatalf("initial state mismatch:\n%s", diff)
	}
	if sheet.State[0][0].Value != fieldValue(firstOption) {
		t.Fatalf("first option not preselected")
	}

	sheet, err = sheet.Apply(0, AnswerAction{Action: ActionCheck, FieldID: secondOption, Checked: true})
	if err != nil {
		t.Fatalf("choose second option: %v", err)
	}
	sheet, err = sheet.Apply(1, AnswerAction{Action: ActionText, Text: "looks fine"})
	if err != nil {
		t.Fatalf("type comment: %v", err)
	}
	got, err := ToSubmission(sheet.State)
	if err != nil {
		t.Fatalf("ToSubmission: %v", err)
	}
	want := []SubmissionField{
		{Text: nil, SchemaFieldID: secondOption},
		{Text: strp("looks fine"), SchemaFieldID: freeText},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("submission mismatch (-want +got):\n%s", diff)
	}
}

func TestCheckStateNormalizes(t *testing.T) {
	groups := GroupSchema(answerSchema())
	state := AnswerState{
		{{Value: "11", Kind: KindSingleChoice}},
		{{Value: "20", Kind: KindMultiChoice}, {Value: "21", Kind: KindMultiChoice, FieldID: 7}},
		{},
		{},
		{{Value: "looks fine", Kind: KindFreeText}},
	}
	got, err := CheckState(groups, state)
	if err != nil {
		t.Fatalf("CheckState: %v", err)
	}
	want := AnswerState{
		{{Value: "11", Kind: KindSingleChoice}},
		{{Value: "20", Kind: KindMultiChoice}, {Value: "21", Kind: KindMultiChoice}},
		{},
		{},
		{{Value: "looks fine", Kind: KindFreeText, FieldID: 50}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("CheckState mismatch (-want +got):\n%s", diff)
	}
	if state[4][0].FieldID != 0 {
		t.Fatalf("input state modified")
	}
}

func TestCheckStateReportsIssues(t *testing.T) {
	groups := GroupSchema(answerSchema())
	state := AnswerState{
		{{Value: "10", Kind: KindSingleChoice}, {Value: "11", Kind: KindSingleChoice}},
		{{Value: "30", Kind: KindMultiChoice}},
		{{Value: "en", Kind: KindSingleSelect}},
		{{Value: "40", Kind: KindMultiSelect}, {Value: "40", Kind: KindMultiSelect}},
		{{Value: "x", Kind: KindSingleChoice}},
	}
	_, err := CheckState(groups, state)
	verr, ok := AsValidationError(err)
	if !ok {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	type at struct {
		Group, Option int
		Code          IssueCode
	}
	var got []at
	for _, is := range verr.Issues {
		got = append(got, at{is.Group, is.Option, is.Code})
	}
	want := []at{
		{0, -1, IssueTooManyAnswers},
		{1, 0, IssueUnknownField},
		{2, 0, IssueUnknownField},
		{3, 1, IssueRepeatedAnswer},
		{4, 0, IssueAnswerKind},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("issues mismatch (-want +got):\n%s", diff)
	}

	if _, err := CheckState(groups, state[:2]); err == nil {
		t.Fatalf("short state accepted")
	} else if se, ok := AsServiceError(err); !ok || se.Code != ErrorInvalid {
		t.Fatalf("short state err = %v", err)
	}
}

func TestSheetSameSchema(t *testing.T) {
	sheet := NewSheet(answerSchema())
	if !sheet.SameSchema(GroupSchema(answerSchema())) {
		t.Fatalf("sheet does not match its own schema")
	}
	renamed := answerSchema()
	renamed[0].Name = "Yes"
	if !sheet.SameSchema(GroupSchema(renamed)) {
		t.Fatalf("option rename should keep the sheet")
	}
	if sheet.SameSchema(GroupSchema(answerSchema()[:8])) {
		t.Fatalf("dropped group not detected")
	}
	reordered := answerSchema()
	reordered[0], reordered[1] = reordered[1], reordered[0]
	if sheet.SameSchema(GroupSchema(reordered)) {
		t.Fatalf("reordered fields not detected")
	}
}
