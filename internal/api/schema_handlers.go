package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rwfshr/markup/internal/client"
	"github.com/rwfshr/markup/internal/db"
	"github.com/rwfshr/markup/internal/middleware"
	"github.com/rwfshr/markup/internal/services"
)

type markupTypeForm struct {
	ID     int64                      `json:"id"`
	Form   services.SchemaForm        `json:"form"`
	Issues []services.ValidationIssue `json:"issues,omitempty"`
}

type publishedSchema struct {
	ID     int64                  `json:"id"`
	Fields []services.SchemaField `json:"fields"`
}

// GET /api/v1/markup-types/{id}/form
func (s *Server) handleMarkupTypeForm(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		s.fail(w, r, "markup_types.form", err)
		return
	}
	mt, err := s.catalog.markupType(r.Context(), credentials(r), id)
	if err != nil {
		s.fail(w, r, "markup_types.form", err)
		return
	}
	respondJSON(w, http.StatusOK, markupTypeForm{
		ID:     mt.ID,
		Form:   services.SchemaForm{Name: mt.Name, Groups: services.ToEditorForm(mt.Fields)},
		Issues: services.CheckSchema(mt.Fields),
	})
}

// POST /api/v1/markup-types
func (s *Server) handleCreateMarkupType(w http.ResponseWriter, r *http.Request) {
	var form services.SchemaForm
	if err := decodeBody(r, &form); err != nil {
		s.fail(w, r, "markup_types.create", err)
		return
	}
	id, fields, err := s.publish(r.Context(), credentials(r), 0, form, nil)
	if err != nil {
		s.fail(w, r, "markup_types.create", err)
		return
	}
	respondJSON(w, http.StatusCreated, publishedSchema{ID: id, Fields: fields})
}

// PUT /api/v1/markup-types/{id}
func (s *Server) handleUpdateMarkupType(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		s.fail(w, r, "markup_types.update", err)
		return
	}
	var form services.SchemaForm
	if err := decodeBody(r, &form); err != nil {
		s.fail(w, r, "markup_types.update", err)
		return
	}
	_, fields, err := s.publish(r.Context(), credentials(r), id, form, nil)
	if err != nil {
		s.fail(w, r, "markup_types.update", err)
		return
	}
	respondJSON(w, http.StatusOK, publishedSchema{ID: id, Fields: fields})
}

// publish validates and flattens form, then updates markup type id, or
// creates one when id is 0. Field ids survive from base, or from the stored
// schema when base is nil. It returns the id and the stored rows after the
// write.
func (s *Server) publish(ctx context.Context, cred client.Credentials, id int64, form services.SchemaForm, base []services.SchemaField) (int64, []services.SchemaField, error) {
	req, err := form.Request()
	if err != nil {
		return 0, nil, err
	}
	if id == 0 {
		if id, err = s.upstream.CreateMarkupType(ctx, cred, req); err != nil {
			return 0, nil, err
		}
	} else {
		if base == nil {
			prev, err := s.upstream.MarkupType(ctx, cred, id)
			if err != nil {
				return 0, nil, err
			}
			base = prev.Fields
		}
		req.Fields = services.CarryFieldIDs(base, req.Fields)
		if err := s.upstream.UpdateMarkupType(ctx, cred, id, req); err != nil {
			return 0, nil, err
		}
		s.catalog.forgetMarkupType(ctx, id)
	}
	stored, err := s.upstream.MarkupType(ctx, cred, id)
	if err != nil {
		return 0, nil, err
	}
	return id, stored.Fields, nil
}

type schemaDraftRequest struct {
	Name             string `json:"name"`
	FromMarkupTypeID int64  `json:"from_markup_type_id"`
}

type schemaDraftResponse struct {
	ID           string                     `json:"id"`
	MarkupTypeID int64                      `json:"markup_type_id,omitempty"`
	Form         services.SchemaForm        `json:"form"`
	Version      int64                      `json:"version"`
	Issues       []services.ValidationIssue `json:"issues,omitempty"`
}

func schemaDraftBody(d *db.SchemaDraft) schemaDraftResponse {
	return schemaDraftResponse{
		ID:           d.ID,
		MarkupTypeID: d.MarkupTypeID,
		Form:         d.Form,
		Version:      d.Version,
		Issues:       services.Validate(d.Form),
	}
}

func (s *Server) ownedSchemaDraft(ctx context.Context, id string) (*db.SchemaDraft, error) {
	d, err := s.drafts.GetSchemaDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Owner != middleware.OwnerFromContext(ctx) {
		return nil, db.ErrNotFound
	}
	return d, nil
}

// POST /api/v1/schema-drafts
func (s *Server) handleCreateSchemaDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req schemaDraftRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.fail(w, r, "schema_drafts.create", services.NewInvalidError("invalid JSON body: "+err.Error()))
		return
	}
	d := &db.SchemaDraft{
		Owner: middleware.OwnerFromContext(ctx),
		Form:  services.SchemaForm{Name: req.Name, Groups: []services.SchemaGroup{}},
	}
	if req.FromMarkupTypeID > 0 {
		mt, err := s.upstream.MarkupType(ctx, credentials(r), req.FromMarkupTypeID)
		if err != nil {
			s.fail(w, r, "schema_drafts.create", err)
			return
		}
		d.MarkupTypeID = mt.ID
		d.BaseFields = mt.Fields
		d.Form = services.SchemaForm{Name: mt.Name, Groups: services.ToEditorForm(mt.Fields)}
		if req.Name != "" {
			d.Form.Name = req.Name
		}
	}
	if err := s.drafts.CreateSchemaDraft(ctx, d); err != nil {
		s.fail(w, r, "schema_drafts.create", err)
		return
	}
	setETag(w, d.ETag)
	respondJSON(w, http.StatusCreated, schemaDraftBody(d))
}

// GET /api/v1/schema-drafts/{id}
func (s *Server) handleGetSchemaDraft(w http.ResponseWriter, r *http.Request) {
	d, err := s.ownedSchemaDraft(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, "schema_drafts.get", err)
		return
	}
	setETag(w, d.ETag)
	if etagMatches(r, d.ETag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	respondJSON(w, http.StatusOK, schemaDraftBody(d))
}

// PATCH /api/v1/schema-drafts/{id}
func (s *Server) handleEditSchemaDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	expected, pinned, err := ifMatch(r)
	if err != nil {
		s.fail(w, r, "schema_drafts.edit", err)
		return
	}
	var op services.EditOp
	if err := decodeBody(r, &op); err != nil {
		s.fail(w, r, "schema_drafts.edit", err)
		return
	}
	for attempt := 1; ; attempt++ {
		d, err := s.ownedSchemaDraft(ctx, id)
		if err != nil {
			s.fail(w, r, "schema_drafts.edit", err)
			return
		}
		if pinned && d.Version != expected {
			s.fail(w, r, "schema_drafts.edit", db.ErrVersionConflict)
			return
		}
		form, err := d.Form.Apply(op)
		if err != nil {
			s.fail(w, r, "schema_drafts.edit", err)
			return
		}
		updated, err := s.drafts.UpdateSchemaDraft(ctx, id, d.Version, form, 0, nil)
		if errors.Is(err, db.ErrVersionConflict) && !pinned && attempt < casRetries {
			continue
		}
		if err != nil {
			s.fail(w, r, "schema_drafts.edit", err)
			return
		}
		setETag(w, updated.ETag)
		respondJSON(w, http.StatusOK, schemaDraftBody(updated))
		return
	}
}

type publishResponse struct {
	MarkupTypeID int64                  `json:"markup_type_id"`
	Fields       []services.SchemaField `json:"fields"`
	Version      int64                  `json:"version"`
}

// POST /api/v1/schema-drafts/{id}/publish
func (s *Server) handlePublishSchemaDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	expected, pinned, err := ifMatch(r)
	if err != nil {
		s.fail(w, r, "schema_drafts.publish", err)
		return
	}
	d, err := s.ownedSchemaDraft(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, "schema_drafts.publish", err)
		return
	}
	if pinned && d.Version != expected {
		s.fail(w, r, "schema_drafts.publish", db.ErrVersionConflict)
		return
	}
	markupTypeID, fields, err := s.publish(ctx, credentials(r), d.MarkupTypeID, d.Form, d.BaseFields)
	if err != nil {
		s.fail(w, r, "schema_drafts.publish", err)
		return
	}
	updated, err := s.drafts.UpdateSchemaDraft(ctx, d.ID, d.Version, d.Form, markupTypeID, fields)
	if err != nil {
		// Upstream already holds the schema; only the draft's base is stale.
		slog.Warn("published schema draft changed concurrently",
			slog.String("op", "schema_drafts.publish"),
			slog.String("draft_id", d.ID),
			slog.String("error", err.Error()),
		)
		respondJSON(w, http.StatusOK, publishResponse{MarkupTypeID: markupTypeID, Fields: fields, Version: d.Version})
		return
	}
	setETag(w, updated.ETag)
	respondJSON(w, http.StatusOK, publishResponse{MarkupTypeID: markupTypeID, Fields: fields, Version: updated.Version})
}

// DELETE /api/v1/schema-drafts/{id}
func (s *Server) handleDeleteSchemaDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	d, err := s.ownedSchemaDraft(ctx, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, "schema_drafts.delete", err)
		return
	}
	if err := s.drafts.DeleteSchemaDraft(ctx, d.ID); err != nil {
		s.fail(w, r, "schema_drafts.delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
