package services

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorCode string

const (
	ErrorInvalid    ErrorCode = "invalid"
	ErrorNotFound   ErrorCode = "not_found"
	ErrorConflict   ErrorCode = "conflict"
	ErrorBadGateway ErrorCode = "bad_gateway"
)

type ServiceError struct {
	Code    ErrorCode
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error  { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewNotFoundError(msg string) error { return &ServiceError{Code: ErrorNotFound, Message: msg} }

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IssueCode identifies a single user-correctable problem in a schema.
type IssueCode string

const (
	IssueEmptyName       IssueCode = "empty_name"
	IssueMissingKind     IssueCode = "missing_kind"
	IssueUnknownKind     IssueCode = "unknown_kind"
	IssueNoOptions       IssueCode = "no_options"
	IssueDuplicateOption IssueCode = "duplicate_option"
	IssueMixedKind       IssueCode = "mixed_kind"
	IssueMixedLabel      IssueCode = "mixed_label"
	IssueFreeTextFields  IssueCode = "free_text_fields"
	IssueEmptyOption     IssueCode = "empty_option"

	IssueAnswerKind     IssueCode = "answer_kind"
	IssueTooManyAnswers IssueCode = "too_many_answers"
	IssueUnknownField   IssueCode = "unknown_field"
	IssueRepeatedAnswer IssueCode = "repeated_answer"
)

// ValidationIssue points at the offending group (0-based, -1 for the schema
// itself) and, when relevant, the option inside it (-1 otherwise).
type ValidationIssue struct {
	Group   int       `json:"group"`
	Option  int       `json:"option"`
	Code    IssueCode `json:"code"`
	Message string    `json:"message"`
}

type ValidationError struct {
	Issues []ValidationIssue `json:"issues"`
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "validation failed"
	}
	msgs := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		msgs = append(msgs, is.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// CorruptAnswer is one non-free-text answer whose value is not a field id.
type CorruptAnswer struct {
	Group int
	Value string
}

// InvariantError reports answer-state corruption. It is a programming error,
// never a user mistake.
type InvariantError struct {
	Dropped []CorruptAnswer
}

func (e *InvariantError) Error() string {
	parts := make([]string, 0, len(e.Dropped))
	for _, d := range e.Dropped {
		parts = append(parts, fmt.Sprintf("group %d: %q", d.Group, d.Value))
	}
	return "answer state holds non-numeric field ids: " + strings.Join(parts, ", ")
}

func AsInvariantError(err error) (*InvariantError, bool) {
	var ie *InvariantError
	if errors.As(err, &ie) {
		return ie, true
	}
	return nil, false
}
