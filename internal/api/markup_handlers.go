package api

import (
	"fmt"
	"net/http"

	"github.com/rwfshr/markup/internal/client"
	"github.com/rwfshr/markup/internal/services"
)

type referenceRequest struct {
	MarkupTypeID int64                `json:"markup_type_id"`
	State        services.AnswerState `json:"state"`
}

type referenceResponse struct {
	ID      int64                      `json:"id"`
	Hash    string                     `json:"hash"`
	Fields  []services.SubmissionField `json:"fields"`
	Dropped []services.CorruptAnswer   `json:"dropped,omitempty"`
}

// POST /api/v1/markups/{id}/reference
func (s *Server) handleStoreReference(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	markupID, err := pathInt(r, "id")
	if err != nil {
		s.fail(w, r, "markups.reference", err)
		return
	}
	var req referenceRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, "markups.reference", err)
		return
	}
	if req.MarkupTypeID <= 0 {
		s.fail(w, r, "markups.reference", services.NewInvalidError("markup_type_id is required"))
		return
	}
	mt, err := s.catalog.markupType(ctx, credentials(r), req.MarkupTypeID)
	if err != nil {
		s.fail(w, r, "markups.reference", err)
		return
	}
	state, err := services.CheckState(services.GroupSchema(mt.Fields), req.State)
	if err != nil {
		s.fail(w, r, "markups.reference", err)
		return
	}
	fields, dropped, err := s.submissionFields(ctx, "markups.reference", state)
	if err != nil {
		s.fail(w, r, "markups.reference", err)
		return
	}
	id, err := s.upstream.StoreReference(ctx, credentials(r), services.ReferenceSubmission{MarkupID: markupID, Fields: fields})
	if err != nil {
		s.fail(w, r, "markups.reference", err)
		return
	}
	respondJSON(w, http.StatusCreated, referenceResponse{ID: id, Hash: services.AnswerHash(fields), Fields: fields, Dropped: dropped})
}

type assessmentTable struct {
	MarkupID      int64                    `json:"markup_id"`
	ReferenceHash string                   `json:"reference_hash,omitempty"`
	Rows          []services.AssessmentRow `json:"rows"`
	Page          int                      `json:"page,omitempty"`
	PagesTotal    int                      `json:"pages_total,omitempty"`
}

// GET /api/v1/markups/{id}/assessments?page&per_page&format=json|csv
func (s *Server) handleListAssessments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cred := credentials(r)
	markupID, err := pathInt(r, "id")
	if err != nil {
		s.fail(w, r, "markups.assessments", err)
		return
	}
	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "csv" {
		respondError(w, http.StatusBadRequest, string(services.ErrorInvalid), fmt.Sprintf("unknown format %q", format))
		return
	}
	page, err := queryInt(r, "page", 0)
	if err != nil {
		s.fail(w, r, "markups.assessments", err)
		return
	}
	perPage, err := queryInt(r, "per_page", 0)
	if err != nil {
		s.fail(w, r, "markups.assessments", err)
		return
	}
	markup, err := s.upstream.Markup(ctx, cred, markupID)
	if err != nil {
		s.fail(w, r, "markups.assessments", err)
		return
	}

	table := assessmentTable{MarkupID: markupID, ReferenceHash: markup.ReferenceHash()}
	var items []client.Assessment
	q := client.AssessmentQuery{MarkupID: markupID, Page: page, PerPage: perPage}
	if page > 0 && format != "csv" {
		p, err := s.upstream.Assessments(ctx, cred, q)
		if err != nil {
			s.fail(w, r, "markups.assessments", err)
			return
		}
		items, table.Page, table.PagesTotal = p.Data, p.Page, int(p.PagesTotal)
	} else {
		items, err = s.upstream.AllAssessments(ctx, cred, q)
		if err != nil {
			s.fail(w, r, "markups.assessments", err)
			return
		}
	}
	table.Rows = assessmentRows(markup, items)

	if format == "csv" {
		data, err := services.ExportAssessmentsCSV(table.Rows)
		if err != nil {
			s.fail(w, r, "markups.assessments", err)
			return
		}
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="markup_%d_assessments.csv"`, markupID))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}
	respondJSON(w, http.StatusOK, table)
}

func assessmentRows(markup client.Markup, items []client.Assessment) []services.AssessmentRow {
	refHash := markup.ReferenceHash()
	rows := make([]services.AssessmentRow, 0, len(items))
	for _, a := range items {
		row := services.AssessmentRow{
			ID:          a.ID,
			Assessor:    a.User.Email,
			Fields:      a.Fields,
			IsReference: markup.CorrectAssessment != nil && markup.CorrectAssessment.ID == a.ID,
		}
		rows = append(rows, services.SummarizeAssessment(row, a.MarkupType.Fields, refHash))
	}
	return rows
}

// POST /api/v1/markups/{id}/honeypot
func (s *Server) handleHoneypot(w http.ResponseWriter, r *http.Request) {
	markupID, err := pathInt(r, "id")
	if err != nil {
		s.fail(w, r, "markups.honeypot", err)
		return
	}
	if err := s.upstream.CreateHoneypot(r.Context(), credentials(r), markupID); err != nil {
		s.fail(w, r, "markups.honeypot", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "markup_id": markupID})
}
