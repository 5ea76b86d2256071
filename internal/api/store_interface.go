package api

import (
	"context"

	"github.com/rwfshr/markup/internal/client"
	"github.com/rwfshr/markup/internal/db"
	"github.com/rwfshr/markup/internal/services"
)

// DraftStore persists answer sheets and schema editor sessions between
// requests. Updates are compare-and-swap on the stored version.
type DraftStore interface {
	CreateAnswerDraft(ctx context.Context, d *db.AnswerDraft) (*db.AnswerDraft, bool, error)
	ReplaceAnswerDraft(ctx context.Context, expected int64, d *db.AnswerDraft) (*db.AnswerDraft, error)
	GetAnswerDraft(ctx context.Context, assessmentID int64) (*db.AnswerDraft, error)
	UpdateAnswerSheet(ctx context.Context, assessmentID, expected int64, sheet services.Sheet) (*db.AnswerDraft, error)
	DeleteAnswerDraft(ctx context.Context, assessmentID int64) error

	CreateSchemaDraft(ctx context.Context, d *db.SchemaDraft) error
	GetSchemaDraft(ctx context.Context, id string) (*db.SchemaDraft, error)
	UpdateSchemaDraft(ctx context.Context, id string, expected int64, form services.SchemaForm, markupTypeID int64, base []services.SchemaField) (*db.SchemaDraft, error)
	DeleteSchemaDraft(ctx context.Context, id string) error

	Ping(ctx context.Context) error
}

// Upstream is the assessment service. Every call acts on behalf of the
// credential it is given.
type Upstream interface {
	MarkupType(ctx context.Context, cred client.Credentials, id int64) (services.MarkupType, error)
	CreateMarkupType(ctx context.Context, cred client.Credentials, req services.SchemaRequest) (int64, error)
	UpdateMarkupType(ctx context.Context, cred client.Credentials, id int64, req services.SchemaRequest) error
	Batch(ctx context.Context, cred client.Credentials, id int64) (client.Batch, error)
	Markup(ctx context.Context, cred client.Credentials, id int64) (client.Markup, error)
	NextAssessment(ctx context.Context, cred client.Credentials) (client.NextAssessment, error)
	SubmitAssessment(ctx context.Context, cred client.Credentials, id int64, sub services.Submission) error
	StoreReference(ctx context.Context, cred client.Credentials, sub services.ReferenceSubmission) (int64, error)
	Assessments(ctx context.Context, cred client.Credentials, q client.AssessmentQuery) (client.AssessmentPage, error)
	AllAssessments(ctx context.Context, cred client.Credentials, q client.AssessmentQuery) ([]client.Assessment, error)
	CreateHoneypot(ctx context.Context, cred client.Credentials, markupID int64) error
	Profile(ctx context.Context, cred client.Credentials) (client.Profile, error)
}

var (
	_ DraftStore = (*db.SQLiteStore)(nil)
	_ Upstream   = (*client.Client)(nil)
)
