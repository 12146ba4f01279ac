package result

import (
	"github.com/docflowlabs/docflow-service/internal/apperr"
)

// Scope identifies the command a Result answers for.
type Scope struct {
	Tenant string
	Module string
	Action string
}

// FieldError is one boundary-visible failure.
type FieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Result is the boundary-agnostic command outcome.
type Result struct {
	Success bool                   `json:"success"`
	Tenant  string                 `json:"tenant"`
	Module  string                 `json:"module"`
	Action  string                 `json:"action"`
	Data    interface{}            `json:"data,omitempty"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
	Errors  []FieldError           `json:"errors,omitempty"`
}

// OK builds a success result.
func OK(sc Scope, data interface{}) Result {
	return Result{Success: true, Tenant: sc.Tenant, Module: sc.Module, Action: sc.Action, Data: data}
}

// Fail builds a failure result from explicit field errors.
func Fail(sc Scope, errs ...FieldError) Result {
	return Result{Tenant: sc.Tenant, Module: sc.Module, Action: sc.Action, Errors: errs}
}

// FromError maps a typed (or untyped) error to a failure result. Untyped
// and internal errors are masked unless expose is set.
func FromError(sc Scope, err error, expose bool) Result {
	if e := apperr.AsError(err); e != nil && e.Kind != apperr.KindInternal {
		return Fail(sc, FieldError{Code: e.Code, Message: e.Message, Field: e.Field})
	}
	fe := FieldError{Code: "internal_error", Message: "internal error"}
	if expose {
		fe.Message = err.Error()
	}
	return Fail(sc, fe)
}
