package services

import "testing"

func boolp(b bool) *bool { return &b }

func TestAnswerHash(t *testing.T) {
	cases := []struct {
		fields []SubmissionField
		want   string
	}{
		{nil, ""},
		{[]SubmissionField{{SchemaFieldID: 12}, {SchemaFieldID: 3}, {SchemaFieldID: 7, Text: strp("x")}}, "3,7,12"},
		{[]SubmissionField{{SchemaFieldID: 5}}, "5"},
	}
	for _, c := range cases {
		if got := AnswerHash(c.fields); got != c.want {
			t.Fatalf("AnswerHash(%v)=%q, want %q", c.fields, got, c.want)
		}
	}
}

func TestMatchesReference(t *testing.T) {
	fields := []SubmissionField{{SchemaFieldID: 2}, {SchemaFieldID: 1}}
	if !MatchesReference(fields, "1,2") {
		t.Fatalf("expected match")
	}
	if MatchesReference(fields, "1,3") {
		t.Fatalf("unexpected match")
	}
	if MatchesReference(nil, "") {
		t.Fatalf("markup without reference must never match")
	}
}

func TestDescribeAnswers(t *testing.T) {
	schema := answerSchema()
	fields := []SubmissionField{
		{SchemaFieldID: 11},
		{SchemaFieldID: 20},
		{SchemaFieldID: 999},
		{SchemaFieldID: 50, Text: strp("fine")},
	}
	want := "Relevant?: Irrelevant, Tags: news, -, Comment: fine"
	if got := DescribeAnswers(schema, fields); got != want {
		t.Fatalf("DescribeAnswers = %q, want %q", got, want)
	}
}

func TestComputeAccuracy(t *testing.T) {
	st := ComputeAccuracy([]*bool{boolp(true), boolp(false), nil, boolp(true), boolp(true)})
	if st.Total != 4 || st.Correct != 3 || st.Accuracy != 0.75 {
		t.Fatalf("stats = %+v", st)
	}
	if empty := ComputeAccuracy(nil); empty.Accuracy != 0 || empty.Total != 0 {
		t.Fatalf("empty stats = %+v", empty)
	}
}
