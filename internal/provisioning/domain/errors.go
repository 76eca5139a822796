package domain

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/shipnology/shipnology-backend/pkg/errors"
)

// TokenErrorKind enumerates why a setup token was refused
type TokenErrorKind int

const (
	TokenNotFound TokenErrorKind = iota + 1
	TokenAlreadyUsed
	TokenExpired
)

func (k TokenErrorKind) String() string {
	switch k {
	case TokenNotFound:
		return "not_found"
	case TokenAlreadyUsed:
		return "already_used"
	case TokenExpired:
		return "expired"
	}
	return "unknown"
}

// TokenError refuses a setup token before any provisioning step runs
type TokenError struct {
	Kind TokenErrorKind
}

// Sentinels for errors.Is
var (
	ErrTokenNotFound    = &TokenError{Kind: TokenNotFound}
	ErrTokenAlreadyUsed = &TokenError{Kind: TokenAlreadyUsed}
	ErrTokenExpired     = &TokenError{Kind: TokenExpired}
)

func (e *TokenError) Error() string {
	return "setup token " + e.Kind.String()
}

// Is matches any TokenError of the same kind
func (e *TokenError) Is(target error) bool {
	t, ok := target.(*TokenError)
	return ok && t.Kind == e.Kind
}

// AppError maps the refusal to its HTTP representation
func (e *TokenError) AppError() *errors.AppError {
	switch e.Kind {
	case TokenAlreadyUsed:
		return &errors.AppError{Err: e, Code: "TOKEN_ALREADY_USED", Message: "setup token has already been used",
			MessageKey: "errors.setup_token_used", StatusCode: http.StatusConflict}
	case TokenExpired:
		return &errors.AppError{Err: e, Code: "TOKEN_EXPIRED", Message: "setup token has expired",
			MessageKey: "errors.setup_token_expired", StatusCode: http.StatusGone}
	default:
		return &errors.AppError{Err: e, Code: "NOT_FOUND", Message: "setup token not found",
			MessageKey: "errors.setup_token_not_found", StatusCode: http.StatusNotFound}
	}
}

// ProvisioningError is a failure while creating or dropping a tenant database
type ProvisioningError struct {
	Database string
	Op       string
	Err      error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning %s: %s: %v", e.Database, e.Op, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// AppError maps the failure to its HTTP representation
func (e *ProvisioningError) AppError() *errors.AppError {
	return &errors.AppError{
		Err:        e,
		Code:       "PROVISIONING_FAILED",
		Message:    "tenant database could not be provisioned",
		MessageKey: "errors.internal",
		StatusCode: http.StatusInternalServerError,
		Details:    map[string]string{"database": e.Database, "step": e.Op},
	}
}

// SchemaApplicationError is a failure while applying the tenant script.
// Index is 1-based; 0 means the script could not be parsed.
type SchemaApplicationError struct {
	Index     int
	Statement string
	Err       error
}

func (e *SchemaApplicationError) Error() string {
	if e.Index == 0 {
		return fmt.Sprintf("schema script rejected: %v", e.Err)
	}
	return fmt.Sprintf("schema statement %d failed: %v", e.Index, e.Err)
}

func (e *SchemaApplicationError) Unwrap() error { return e.Err }

// AppError maps the failure to its HTTP representation
func (e *SchemaApplicationError) AppError() *errors.AppError {
	return &errors.AppError{
		Err:        e,
		Code:       "SCHEMA_APPLICATION_FAILED",
		Message:    "tenant schema could not be applied",
		MessageKey: "errors.schema_failed",
		StatusCode: http.StatusInternalServerError,
		Details:    map[string]string{"statement_index": strconv.Itoa(e.Index)},
	}
}

// BootstrapError is a failure while creating the supervisor account
type BootstrapError struct {
	Err error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("supervisor bootstrap failed: %v", e.Err)
}

func (e *BootstrapError) Unwrap() error { return e.Err }

// AppError maps the failure to its HTTP representation
func (e *BootstrapError) AppError() *errors.AppError {
	return &errors.AppError{
		Err:        e,
		Code:       "BOOTSTRAP_FAILED",
		Message:    "supervisor account could not be created",
		MessageKey: "errors.bootstrap_failed",
		StatusCode: http.StatusInternalServerError,
	}
}

// RollbackError reports a provisioning failure whose cleanup also failed.
// It unwraps to the original cause so errors.Is/As keep working on it.
type RollbackError struct {
	Cause      error
	CleanupErr error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%v (rollback incomplete: %v)", e.Cause, e.CleanupErr)
}

func (e *RollbackError) Unwrap() error { return e.Cause }

// AppError keeps the cause's representation and flags the unclean rollback
func (e *RollbackError) AppError() *errors.AppError {
	base := errors.From(e.Cause)
	details := map[string]string{"rollback": "incomplete"}
	for k, v := range base.Details {
		details[k] = v
	}
	return &errors.AppError{
		Err:        e,
		Code:       base.Code,
		Message:    base.Message,
		MessageKey: base.MessageKey,
		Params:     base.Params,
		StatusCode: base.StatusCode,
		Details:    details,
	}
}

// InvalidDatabaseName is the validation error for a malformed name
func InvalidDatabaseName(name string) *errors.AppError {
	appErr := errors.Validation(map[string]string{
		"database_name": "must start with a lowercase letter and contain only lowercase letters, digits and underscores",
	})
	appErr.Params = map[string]string{"name": name}
	return appErr
}

// ReservedDatabaseName refuses a name owned by the server or the control plane
func ReservedDatabaseName(name string) *errors.AppError {
	appErr := errors.Validation(map[string]string{"database_name": "is reserved"})
	appErr.Params = map[string]string{"name": name}
	return appErr
}

// DatabaseAlreadyExists refuses a name already present on the server but
// unknown to the registry
func DatabaseAlreadyExists(name string) *errors.AppError {
	appErr := errors.Conflict("a database with this name already exists on the server")
	appErr.Details = map[string]string{"database_name": name}
	return appErr
}

// ProvisioningInProgress rejects a second concurrent run for one organisation
func ProvisioningInProgress() *errors.AppError {
	return &errors.AppError{
		Err:        errors.ErrConflict,
		Code:       "PROVISIONING_IN_PROGRESS",
		Message:    "provisioning is already running for this organisation",
		MessageKey: "errors.provisioning_in_progress",
		StatusCode: http.StatusConflict,
	}
}
