package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"

	"github.com/rwfshr/markup/internal/services"
)

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.Execute()
	return out.String(), errOut.String(), err
}

const toneForm = `name: Tone
groups:
  - type: "3"
    label: Tone
    options: [calm, angry]
  - type: "5"
    label: Why?
    options: [""]
`

func TestDecodeComparisonView(t *testing.T) {
	out, _, err := run(t, `{"query_text":"q","title1_text":"a","title2_text":"b"}`, "decode", "--type=2", "--view")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var view services.RecordView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("parse view: %v\n%s", err, out)
	}
	if view.Layout != services.LayoutGrid || len(view.Rows) != 2 || !view.Rows[0].Shared {
		t.Fatalf("view = %+v", view)
	}
}

func TestDecodeFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.json")
	if err := os.WriteFile(path, []byte(`not json`), 0o644); err != nil {
		t.Fatal(err)
	}
	out, _, err := run(t, "", "decode", path)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var fields []services.FieldDescriptor
	if err := json.Unmarshal([]byte(out), &fields); err != nil {
		t.Fatalf("parse fields: %v", err)
	}
	want := []services.FieldDescriptor{{Key: services.RecordFallbackKey, Kind: services.KindText, Value: "not json"}}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Fatalf("fields mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	if _, _, err := run(t, "{}", "decode", "--type=9"); err == nil {
		t.Fatal("expected error for batch type 9")
	}
}

func TestSchemaLint(t *testing.T) {
	out, _, err := run(t, toneForm, "schema", "lint")
	if err != nil {
		t.Fatalf("lint valid form: %v", err)
	}
	if out != "ok: 2 groups\n" {
		t.Fatalf("out = %q", out)
	}

	bad := `{"name":"","groups":[{"type":"","label":"Q","options":["a"]},{"type":"1","label":"R","options":["x","x"]}]}`
	out, _, err = run(t, bad, "schema", "lint", "-")
	if !errors.Is(err, errInvalidSchema) {
		t.Fatalf("err = %v, want errInvalidSchema", err)
	}
	for _, want := range []string{"schema: empty_name", "group 1: missing_kind", "group 2 option 2: duplicate_option"} {
		if !strings.Contains(out, want) {
			t.Fatalf("lint output lacks %q:\n%s", want, out)
		}
	}
}

func TestSchemaFlatten(t *testing.T) {
	out, _, err := run(t, toneForm, "schema", "flatten")
	if err != nil {
		t.Fatalf("flatten: %v", err)
	}
	var req services.SchemaRequest
	if err := json.Unmarshal([]byte(out), &req); err != nil {
		t.Fatalf("parse request: %v", err)
	}
	want := services.SchemaRequest{Name: "Tone", Fields: []services.SchemaField{
		{Name: "calm", Label: "Tone", InputKind: services.KindSingleSelect, GroupID: 1},
		{Name: "angry", Label: "Tone", InputKind: services.KindSingleSelect, GroupID: 1},
		{Name: "", Label: "Why?", InputKind: services.KindFreeText, GroupID: 2},
	}}
	if diff := cmp.Diff(want, req); diff != "" {
		t.Fatalf("request mismatch (-want +got):\n%s", diff)
	}
}

// fakeService serves the markup type endpoints markupctl uses.
type fakeService struct {
	mu      sync.Mutex
	stored  services.MarkupType
	updated *services.SchemaRequest
	created *services.SchemaRequest
	auth    []string
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/v1/markupTypes/7":
		_ = json.NewEncoder(w).Encode(f.stored)
	case r.Method == http.MethodPut && r.URL.Path == "/api/v1/markupTypes/7":
		var req services.SchemaRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.updated = &req
	case r.Method == http.MethodPost && r.URL.Path == "/api/v1/markupTypes":
		var req services.SchemaRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.created = &req
		_ = json.NewEncoder(w).Encode(map[string]int64{"id": 42})
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"no such route"}`))
	}
}

func newFakeService(t *testing.T) (*fakeService, *httptest.Server) {
	t.Helper()
	f := &fakeService{stored: services.MarkupType{ID: 7, Name: "Tone", Fields: []services.SchemaField{
		{ID: 70, Name: "calm", Label: "Tone", InputKind: services.KindSingleSelect, GroupID: 1},
		{ID: 71, Name: "angry", Label: "Tone", InputKind: services.KindSingleSelect, GroupID: 1},
	}}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func TestSchemaPull(t *testing.T) {
	f, srv := newFakeService(t)
	out, _, err := run(t, "", "schema", "pull", "--id=7", "--url="+srv.URL, "--token=tok")
	if err != nil {
		t.Fatalf("pull: %v", err)
	}
	var form services.SchemaForm
	if err := yaml.Unmarshal([]byte(out), &form); err != nil {
		t.Fatalf("parse yaml: %v\n%s", err, out)
	}
	want := services.SchemaForm{Name: "Tone", Groups: []services.SchemaGroup{{Kind: "3", Label: "Tone", Options: []string{"calm", "angry"}}}}
	if diff := cmp.Diff(want, form); diff != "" {
		t.Fatalf("form mismatch (-want +got):\n%s", diff)
	}
	if f.auth[0] != "Bearer tok" {
		t.Fatalf("authorization = %q", f.auth[0])
	}
}

func TestSchemaPushUpdateCarriesIDs(t *testing.T) {
	f, srv := newFakeService(t)
	out, _, err := run(t, toneForm, "schema", "push", "--id=7", "--url="+srv.URL)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if out != "updated markup type 7 (3 fields, 2 kept)\n" {
		t.Fatalf("out = %q", out)
	}
	var ids []int64
	for _, fl := range f.updated.Fields {
		ids = append(ids, fl.ID)
	}
	if diff := cmp.Diff([]int64{70, 71, 0}, ids); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestSchemaPushCreate(t *testing.T) {
	f, srv := newFakeService(t)
	out, _, err := run(t, toneForm, "schema", "push", "--url="+srv.URL)
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if out != "created markup type 42 (3 fields)\n" || f.created == nil {
		t.Fatalf("out = %q, created = %+v", out, f.created)
	}
}

func TestSchemaPushInvalidNeverCallsUpstream(t *testing.T) {
	f, srv := newFakeService(t)
	_, errOut, err := run(t, `{"name":"x","groups":[{"type":"9","label":"L","options":["a"]}]}`, "schema", "push", "--url="+srv.URL)
	if !errors.Is(err, errInvalidSchema) {
		t.Fatalf("err = %v, want errInvalidSchema", err)
	}
	if !strings.Contains(errOut, "unknown_kind") {
		t.Fatalf("stderr = %q", errOut)
	}
	if len(f.auth) != 0 {
		t.Fatalf("upstream called %d times", len(f.auth))
	}
}
