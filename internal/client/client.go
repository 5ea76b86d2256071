package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rwfshr/markup/internal/services"
)

// ErrNotFound is matched by errors.Is for any upstream 404.
var ErrNotFound = errors.New("upstream: not found")

// Credentials is the bearer token of the user on whose behalf a call is made.
type Credentials struct {
	Token string
}

// APIError is a non-2xx answer from the assessment service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("upstream HTTP %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// Client talks to the assessment service API under /api/v1.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type Batch struct {
	ID       int64              `json:"id"`
	Name     string             `json:"name"`
	Overlaps int                `json:"overlaps"`
	Priority int                `json:"priority"`
	IsActive bool               `json:"is_active"`
	TypeID   services.BatchType `json:"type_id"`
}

type User struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

type Assessment struct {
	ID         int64                      `json:"id"`
	UserID     int64                      `json:"user_id"`
	MarkupID   int64                      `json:"markup_id"`
	IsPrior    bool                       `json:"is_prior"`
	Hash       *string                    `json:"hash"`
	Fields     []services.SubmissionField `json:"fields"`
	User       User                       `json:"user"`
	MarkupType services.MarkupType        `json:"markup_type"`
}

type Markup struct {
	ID                    int64       `json:"id"`
	BatchID               int64       `json:"batch_id"`
	StatusID              int         `json:"status_id"`
	Data                  string      `json:"data"`
	CorrectAssessmentHash *string     `json:"correct_assessment_hash"`
	CorrectAssessment     *Assessment `json:"correct_assessment"`
}

// ReferenceHash returns the markup's correct answer hash, "" when unset.
func (m Markup) ReferenceHash() string {
	if m.CorrectAssessmentHash == nil {
		return ""
	}
	return *m.CorrectAssessmentHash
}

type NextAssessment struct {
	AssessmentID int64               `json:"assessment_id"`
	MarkupType   services.MarkupType `json:"markup_type"`
	Data         string              `json:"data"`
}

type AssessmentQuery struct {
	MarkupID int64
	UserID   int64
	Page     int
	PerPage  int
}

type AssessmentPage struct {
	Data       []Assessment `json:"data"`
	Page       int          `json:"page"`
	PerPage    int          `json:"per_page"`
	PagesTotal float64      `json:"pages_total"`
}

type ProfileAssessment struct {
	Assessment
	IsCorrect  bool `json:"is_correct"`
	IsEditable bool `json:"is_editable"`
}

type Profile struct {
	User
	Assessments             []ProfileAssessment `json:"assessments"`
	AssessmentCount         int64               `json:"assessment_count"`
	CorrectAssessmentCount  int64               `json:"correct_assessment_count"`
	AssessmentCount2        int64               `json:"assessment_count2"`
	CorrectAssessmentCount2 int64               `json:"correct_assessment_count2"`
}

func normalizeSchema(mt *services.MarkupType) {
	mt.Fields = mt.FieldsOrEmpty()
}

func (c *Client) MarkupType(ctx context.Context, cred Credentials, id int64) (services.MarkupType, error) {
	var mt services.MarkupType
	if err := c.do(ctx, cred, http.MethodGet, "/markupTypes/"+itoa(id), nil, &mt); err != nil {
		return services.MarkupType{}, err
	}
	normalizeSchema(&mt)
	return mt, nil
}

// CreateMarkupType stores a new schema and returns its id.
func (c *Client) CreateMarkupType(ctx context.Context, cred Credentials, req services.SchemaRequest) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, cred, http.MethodPost, "/markupTypes", req, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

// UpdateMarkupType replaces a schema. Fields sent without an id are created;
// stored fields whose id is absent from the request are deleted.
func (c *Client) UpdateMarkupType(ctx context.Context, cred Credentials, id int64, req services.SchemaRequest) error {
	return c.do(ctx, cred, http.MethodPut, "/markupTypes/"+itoa(id), req, nil)
}

func (c *Client) Batch(ctx context.Context, cred Credentials, id int64) (Batch, error) {
	var b Batch
	err := c.do(ctx, cred, http.MethodGet, "/batches/"+itoa(id), nil, &b)
	return b, err
}

func (c *Client) Markup(ctx context.Context, cred Credentials, id int64) (Markup, error) {
	var m Markup
	if err := c.do(ctx, cred, http.MethodGet, "/markups/"+itoa(id), nil, &m); err != nil {
		return Markup{}, err
	}
	if m.CorrectAssessment != nil && m.CorrectAssessment.Fields == nil {
		m.CorrectAssessment.Fields = []services.SubmissionField{}
	}
	return m, nil
}

// NextAssessment reserves the next item for the calling assessor, or returns
// the one already pending.
func (c *Client) NextAssessment(ctx context.Context, cred Credentials) (NextAssessment, error) {
	var n NextAssessment
	if err := c.do(ctx, cred, http.MethodPost, "/assessments/next", nil, &n); err != nil {
		return NextAssessment{}, err
	}
	normalizeSchema(&n.MarkupType)
	return n, nil
}

func (c *Client) SubmitAssessment(ctx context.Context, cred Credentials, id int64, sub services.Submission) error {
	return c.do(ctx, cred, http.MethodPut, "/assessments/"+itoa(id), sub, nil)
}

// StoreReference saves an administrator's answer for a markup, replacing any
// previous one, and returns the new assessment id.
func (c *Client) StoreReference(ctx context.Context, cred Credentials, sub services.ReferenceSubmission) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, cred, http.MethodPost, "/assessments", sub, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

func (c *Client) Assessments(ctx context.Context, cred Credentials, q AssessmentQuery) (AssessmentPage, error) {
	v := url.Values{}
	if q.MarkupID > 0 {
		v.Set("markup_id", itoa(q.MarkupID))
	}
	if q.UserID > 0 {
		v.Set("user_id", itoa(q.UserID))
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.PerPage > 0 {
		v.Set("per_page", strconv.Itoa(q.PerPage))
	}
	path := "/assessments"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var page AssessmentPage
	if err := c.do(ctx, cred, http.MethodGet, path, nil, &page); err != nil {
		return AssessmentPage{}, err
	}
	if page.Data == nil {
		page.Data = []Assessment{}
	}
	for i := range page.Data {
		normalizeSchema(&page.Data[i].MarkupType)
	}
	return page, nil
}

// AllAssessments walks every page of a query.
func (c *Client) AllAssessments(ctx context.Context, cred Credentials, q AssessmentQuery) ([]Assessment, error) {
	if q.PerPage <= 0 {
		q.PerPage = 100
	}
	out := []Assessment{}
	for q.Page = 1; ; q.Page++ {
		page, err := c.Assessments(ctx, cred, q)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Data...)
		if len(page.Data) == 0 || float64(q.Page) >= page.PagesTotal {
			return out, nil
		}
	}
}

func (c *Client) CreateHoneypot(ctx context.Context, cred Credentials, markupID int64) error {
	return c.do(ctx, cred, http.MethodPost, "/honeypots/"+itoa(markupID), nil, nil)
}

func (c *Client) Profile(ctx context.Context, cred Credentials) (Profile, error) {
	var p Profile
	if err := c.do(ctx, cred, http.MethodGet, "/profiles/me", nil, &p); err != nil {
		return Profile{}, err
	}
	if p.Assessments == nil {
		p.Assessments = []ProfileAssessment{}
	}
	return p, nil
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func (c *Client) do(ctx context.Context, cred Credentials, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/v1"+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cred.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(respBody)}
	}
	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// errorMessage extracts {"error": "..."} bodies, falling back to raw text.
func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(body))
}
