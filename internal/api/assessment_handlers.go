package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rwfshr/markup/internal/client"
	"github.com/rwfshr/markup/internal/db"
	"github.com/rwfshr/markup/internal/middleware"
	"github.com/rwfshr/markup/internal/services"
)

// casRetries bounds read-apply-swap attempts for updates sent without If-Match.
const casRetries = 3

type decodeRequest struct {
	Data   json.RawMessage    `json:"data"`
	TypeID services.BatchType `json:"type_id"`
}

type decodeResponse struct {
	Fields []services.FieldDescriptor `json:"fields"`
	View   services.RecordView        `json:"view"`
}

// recordText accepts the record either as a JSON string holding the payload
// (the upstream form) or as the object itself.
func recordText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func (s *Server) handleDecodeRecord(w http.ResponseWriter, r *http.Request) {
	var req decodeRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, "records.decode", err)
		return
	}
	fields := services.DecodeRecord(recordText(req.Data), req.TypeID)
	respondJSON(w, http.StatusOK, decodeResponse{Fields: fields, View: services.BuildView(fields, req.TypeID)})
}

type answerDraftResponse struct {
	AssessmentID int64                      `json:"assessment_id"`
	MarkupTypeID int64                      `json:"markup_type_id"`
	TypeID       services.BatchType         `json:"type_id"`
	View         services.RecordView        `json:"view"`
	Groups       []services.FieldGroup      `json:"groups"`
	State        services.AnswerState       `json:"state"`
	Version      int64                      `json:"version"`
	SchemaIssues []services.ValidationIssue `json:"schema_issues,omitempty"`
}

func answerDraftBody(d *db.AnswerDraft) answerDraftResponse {
	return answerDraftResponse{
		AssessmentID: d.AssessmentID,
		MarkupTypeID: d.MarkupTypeID,
		TypeID:       d.BatchType,
		View:         d.View,
		Groups:       d.Sheet.Groups,
		State:        d.Sheet.State,
		Version:      d.Version,
	}
}

func (s *Server) handleNextAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cred := credentials(r)
	next, err := s.upstream.NextAssessment(ctx, cred)
	if err != nil {
		s.fail(w, r, "assessments.next", err)
		return
	}
	mt := next.MarkupType
	batchType, err := s.catalog.batchType(ctx, cred, mt)
	if err != nil {
		s.fail(w, r, "assessments.next", err)
		return
	}
	issues := services.CheckSchema(mt.Fields)
	if len(issues) > 0 {
		slog.Warn("inconsistent schema served to assessor",
			slog.String("op", "assessments.next"),
			slog.Int64("markup_type_id", mt.ID),
			slog.Int("issues", len(issues)),
		)
	}
	fields := services.DecodeRecord(next.Data, batchType)
	fresh := &db.AnswerDraft{
		AssessmentID: next.AssessmentID,
		Owner:        middleware.OwnerFromContext(ctx),
		MarkupTypeID: mt.ID,
		BatchType:    batchType,
		Sheet:        services.NewSheet(mt.Fields),
		View:         services.BuildView(fields, batchType),
	}
	draft, created, err := s.resumeAnswerDraft(ctx, fresh)
	if err != nil {
		s.fail(w, r, "assessments.next", err)
		return
	}
	body := answerDraftBody(draft)
	body.SchemaIssues = issues
	setETag(w, draft.ETag)
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, body)
}

// resumeAnswerDraft keeps the draft already stored for the assessment when it
// belongs to the caller and was seeded from the same schema. Anything else is
// replaced by fresh.
func (s *Server) resumeAnswerDraft(ctx context.Context, fresh *db.AnswerDraft) (*db.AnswerDraft, bool, error) {
	for attempt := 1; ; attempt++ {
		stored, created, err := s.drafts.CreateAnswerDraft(ctx, fresh)
		if err != nil || created {
			return stored, created, err
		}
		if stored.Owner == fresh.Owner && stored.MarkupTypeID == fresh.MarkupTypeID && stored.Sheet.SameSchema(fresh.Sheet.Groups) {
			return stored, false, nil
		}
		slog.InfoContext(ctx, "replacing stale answer draft",
			slog.String("op", "assessments.next"),
			slog.Int64("assessment_id", fresh.AssessmentID),
			slog.Int64("version", stored.Version),
		)
		replaced, err := s.drafts.ReplaceAnswerDraft(ctx, stored.Version, fresh)
		if (errors.Is(err, db.ErrVersionConflict) || errors.Is(err, db.ErrNotFound)) && attempt < casRetries {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return replaced, true, nil
	}
}

// ownedAnswerDraft loads the caller's draft. A draft owned by someone else is
// reported as missing.
func (s *Server) ownedAnswerDraft(ctx context.Context, id int64) (*db.AnswerDraft, error) {
	d, err := s.drafts.GetAnswerDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Owner != middleware.OwnerFromContext(ctx) {
		return nil, db.ErrNotFound
	}
	return d, nil
}

func (s *Server) handleGetAnswerDraft(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		s.fail(w, r, "drafts.get", err)
		return
	}
	d, err := s.ownedAnswerDraft(r.Context(), id)
	if err != nil {
		s.fail(w, r, "drafts.get", err)
		return
	}
	setETag(w, d.ETag)
	if etagMatches(r, d.ETag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	respondJSON(w, http.StatusOK, answerDraftBody(d))
}

func (s *Server) handleUpdateAnswerGroup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathInt(r, "id")
	if err != nil {
		s.fail(w, r, "drafts.update", err)
		return
	}
	index, err := pathIndex(r, "index")
	if err != nil {
		s.fail(w, r, "drafts.update", err)
		return
	}
	expected, pinned, err := ifMatch(r)
	if err != nil {
		s.fail(w, r, "drafts.update", err)
		return
	}
	var action services.AnswerAction
	if err := decodeBody(r, &action); err != nil {
		s.fail(w, r, "drafts.update", err)
		return
	}

	for attempt := 1; ; attempt++ {
		d, err := s.ownedAnswerDraft(ctx, id)
		if err != nil {
			s.fail(w, r, "drafts.update", err)
			return
		}
		if pinned && d.Version != expected {
			s.fail(w, r, "drafts.update", db.ErrVersionConflict)
			return
		}
		sheet, err := d.Sheet.Apply(index, action)
		if err != nil {
			s.fail(w, r, "drafts.update", err)
			return
		}
		updated, err := s.drafts.UpdateAnswerSheet(ctx, id, d.Version, sheet)
		if errors.Is(err, db.ErrVersionConflict) && !pinned && attempt < casRetries {
			continue
		}
		if err != nil {
			s.fail(w, r, "drafts.update", err)
			return
		}
		setETag(w, updated.ETag)
		respondJSON(w, http.StatusOK, answerDraftBody(updated))
		return
	}
}

type submitResponse struct {
	AssessmentID int64                      `json:"assessment_id"`
	Hash         string                     `json:"hash"`
	Fields       []services.SubmissionField `json:"fields"`
	Dropped      []services.CorruptAnswer   `json:"dropped,omitempty"`
}

// submissionFields applies the corrupt-answer policy: strict mode refuses the
// submission, lenient mode logs and sends what converted.
func (s *Server) submissionFields(ctx context.Context, op string, state services.AnswerState) ([]services.SubmissionField, []services.CorruptAnswer, error) {
	fields, err := services.ToSubmission(state)
	if err == nil {
		return fields, nil, nil
	}
	ierr, ok := services.AsInvariantError(err)
	if !ok || s.strict {
		return nil, nil, err
	}
	slog.WarnContext(ctx, "dropping corrupt answers",
		slog.String("op", op),
		slog.Int("dropped", len(ierr.Dropped)),
		slog.String("error", ierr.Error()),
	)
	return fields, ierr.Dropped, nil
}

func (s *Server) handleSubmitAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := pathInt(r, "id")
	if err != nil {
		s.fail(w, r, "assessments.submit", err)
		return
	}
	d, err := s.ownedAnswerDraft(ctx, id)
	if err != nil {
		s.fail(w, r, "assessments.submit", err)
		return
	}
	fields, dropped, err := s.submissionFields(ctx, "assessments.submit", d.Sheet.State)
	if err != nil {
		s.fail(w, r, "assessments.submit", err)
		return
	}
	if err := s.upstream.SubmitAssessment(ctx, credentials(r), id, services.Submission{Fields: fields}); err != nil {
		s.fail(w, r, "assessments.submit", err)
		return
	}
	if err := s.drafts.DeleteAnswerDraft(ctx, id); err != nil && !errors.Is(err, db.ErrNotFound) {
		slog.Error("failed to delete submitted draft", slog.String("op", "assessments.submit"),
			slog.Int64("assessment_id", id), slog.String("error", err.Error()))
	}
	respondJSON(w, http.StatusOK, submitResponse{
		AssessmentID: id,
		Hash:         services.AnswerHash(fields),
		Fields:       fields,
		Dropped:      dropped,
	})
}

type profileStatsResponse struct {
	services.AccuracyStats
	Upstream struct {
		AssessmentCount        int64 `json:"assessment_count"`
		CorrectAssessmentCount int64 `json:"correct_assessment_count"`
	} `json:"upstream"`
}

func (s *Server) handleProfileStats(w http.ResponseWriter, r *http.Request) {
	p, err := s.upstream.Profile(r.Context(), credentials(r))
	if err != nil {
		s.fail(w, r, "profiles.stats", err)
		return
	}
	var body profileStatsResponse
	body.AccuracyStats = services.ComputeAccuracy(gradedAssessments(p.Assessments))
	body.Upstream.AssessmentCount = p.AssessmentCount + p.AssessmentCount2
	body.Upstream.CorrectAssessmentCount = p.CorrectAssessmentCount + p.CorrectAssessmentCount2
	respondJSON(w, http.StatusOK, body)
}

// gradedAssessments leaves pending assessments (no answer hash yet) ungraded.
func gradedAssessments(items []client.ProfileAssessment) []*bool {
	out := make([]*bool, len(items))
	for i, a := range items {
		if a.Hash == nil {
			continue
		}
		correct := a.IsCorrect
		out[i] = &correct
	}
	return out
}
