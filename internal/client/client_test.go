package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/rwfshr/markup/internal/services"
)

func newFake(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", WithTimeout(2*time.Second))
}

var cred = Credentials{Token: "tok-1"}

func TestMarkupTypeNullFields(t *testing.T) {
	c := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/markupTypes/7" || r.Method != http.MethodGet {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
			t.Errorf("authorization = %q", got)
		}
		_, _ = io.WriteString(w, `{"id":7,"name":"Relevance","batch_id":3,"child_id":null,"fields":null}`)
	})
	mt, err := c.MarkupType(context.Background(), cred, 7)
	if err != nil {
		t.Fatalf("MarkupType: %v", err)
	}
	if mt.Fields == nil || len(mt.Fields) != 0 {
		t.Fatalf("fields = %#v, want empty", mt.Fields)
	}
	if mt.BatchID == nil || *mt.BatchID != 3 {
		t.Fatalf("batch id = %v", mt.BatchID)
	}
}

func TestMarkupTypeFieldsWithNullName(t *testing.T) {
	c := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"id":7,"name":"x","fields":[
			{"id":1,"markup_type_id":7,"assessment_type_id":5,"name":null,"label":"Comment","group_id":1,"assessment_type":{"id":5,"name":"text"}}]}`)
	})
	mt, err := c.MarkupType(context.Background(), cred, 7)
	if err != nil {
		t.Fatalf("MarkupType: %v", err)
	}
	want := []services.SchemaField{{ID: 1, Name: "", Label: "Comment", InputKind: services.KindFreeText, GroupID: 1}}
	if diff := cmp.Diff(want, mt.Fields); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateAndUpdateMarkupType(t *testing.T) {
	var bodies []services.SchemaRequest
	c := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		var req services.SchemaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}
		bodies = append(bodies, req)
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/markupTypes":
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"id":42}`)
		case r.Method == http.MethodPut && r.URL.Path == "/api/v1/markupTypes/42":
			_, _ = io.WriteString(w, `"OK"`)
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})
	req := services.SchemaRequest{Name: "Relevance", Fields: []services.SchemaField{
		{Name: "Yes", Label: "Q", InputKind: services.KindSingleChoice, GroupID: 1},
	}}
	id, err := c.CreateMarkupType(context.Background(), cred, req)
	if err != nil || id != 42 {
		t.Fatalf("create = %d, %v", id, err)
	}
	req.Fields[0].ID = 9
	if err := c.UpdateMarkupType(context.Background(), cred, 42, req); err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(bodies) != 2 || bodies[0].Fields[0].ID != 0 || bodies[1].Fields[0].ID != 9 {
		t.Fatalf("bodies = %+v", bodies)
	}
}

func TestNotFoundAndErrors(t *testing.T) {
	c := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/markups/1":
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"error":"not found"}`)
		default:
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `forbidden`)
		}
	})
	_, err := c.Markup(context.Background(), cred, 1)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	err = c.CreateHoneypot(context.Background(), cred, 2)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusForbidden || apiErr.Message != "forbidden" {
		t.Fatalf("err = %#v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("403 must not match ErrNotFound")
	}
}

func TestSubmitAndReference(t *testing.T) {
	var got []string
	c := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got = append(got, r.Method+" "+r.URL.Path+" "+strings.TrimSpace(string(b)))
		if r.URL.Path == "/api/v1/assessments" {
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"id":5}`)
			return
		}
		_, _ = io.WriteString(w, `"OK"`)
	})
	text := "fine"
	fields := []services.SubmissionField{{SchemaFieldID: 3}, {Text: &text, SchemaFieldID: 4}}
	if err := c.SubmitAssessment(context.Background(), cred, 11, services.Submission{Fields: fields}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	id, err := c.StoreReference(context.Background(), cred, services.ReferenceSubmission{MarkupID: 8, Fields: fields})
	if err != nil || id != 5 {
		t.Fatalf("reference = %d, %v", id, err)
	}
	want := []string{
		`PUT /api/v1/assessments/11 {"fields":[{"text":null,"markup_type_field_id":3},{"text":"fine","markup_type_field_id":4}]}`,
		`POST /api/v1/assessments {"markup_id":8,"fields":[{"text":null,"markup_type_field_id":3},{"text":"fine","markup_type_field_id":4}]}`,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("requests mismatch (-want +got):\n%s", diff)
	}
}

func TestAllAssessmentsPages(t *testing.T) {
	c := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("markup_id") != "3" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		switch r.URL.Query().Get("page") {
		case "1":
			_, _ = io.WriteString(w, `{"data":[{"id":1,"user":{"ID":4,"Email":"a@x"},"markup_type":{"id":2,"fields":null}}],"page":1,"per_page":1,"pages_total":2}`)
		case "2":
			_, _ = io.WriteString(w, `{"data":[{"id":2,"fields":null}],"page":2,"per_page":1,"pages_total":2}`)
		default:
			t.Errorf("unexpected page %s", r.URL.Query().Get("page"))
		}
	})
	all, err := c.AllAssessments(context.Background(), cred, AssessmentQuery{MarkupID: 3, PerPage: 1})
	if err != nil {
		t.Fatalf("AllAssessments: %v", err)
	}
	if len(all) != 2 || all[0].User.Email != "a@x" || all[0].MarkupType.Fields == nil {
		t.Fatalf("assessments = %+v", all)
	}
}

func TestNextAssessmentAndProfile(t *testing.T) {
	c := newFake(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/assessments/next":
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"assessment_id":12,"markup_type":{"id":2,"batch_id":3,"fields":null},"data":"{\"q1_text\":\"a\"}"}`)
		case "/api/v1/profiles/me":
			_, _ = io.WriteString(w, `{"ID":4,"Email":"a@x","assessments":[{"id":1,"is_correct":true}],"assessment_count":1,"correct_assessment_count":1}`)
		}
	})
	n, err := c.NextAssessment(context.Background(), cred)
	if err != nil || n.AssessmentID != 12 || n.Data != `{"q1_text":"a"}` || n.MarkupType.Fields == nil {
		t.Fatalf("next = %+v, %v", n, err)
	}
	p, err := c.Profile(context.Background(), cred)
	if err != nil || p.Email != "a@x" || len(p.Assessments) != 1 || !p.Assessments[0].IsCorrect {
		t.Fatalf("profile = %+v, %v", p, err)
	}
}
