// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package validation

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

// ErrorCode is the API error code for failed validation.
const ErrorCode = "VALIDATION_ERROR"

// MaxPolicyKeyLen bounds module and process names.
const MaxPolicyKeyLen = 128

var (
	instance     *validator.Validate
	instanceOnce sync.Once

	policyKeyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]*$`)
)

// FieldError describes one failed constraint. Field is the JSON name of the
// field when the struct declares one.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// RequestValidationError lists every failed constraint of a struct.
type RequestValidationError struct {
	Fields []FieldError
}

// Error joins the field messages.
func (e *RequestValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	msgs := make([]string, len(e.Fields))
	for i := range e.Fields {
		msgs[i] = e.Fields[i].Message
	}
	return strings.Join(msgs, "; ")
}

// APIError is the error envelope content for a validation failure.
type APIError struct {
	Code    string
	Message string
	Details map[string]interface{}
}

// ToAPIError converts e for the API error envelope. A single failure is
// reported inline; several are listed under details.fields.
func (e *RequestValidationError) ToAPIError() *APIError {
	switch len(e.Fields) {
	case 0:
		return &APIError{Code: ErrorCode, Message: "Validation failed"}
	case 1:
		f := e.Fields[0]
		return &APIError{
			Code:    ErrorCode,
			Message: f.Message,
			Details: map[string]interface{}{"field": f.Field, "tag": f.Tag},
		}
	}
	return &APIError{
		Code:    ErrorCode,
		Message: e.Error(),
		Details: map[string]interface{}{"fields": e.Fields},
	}
}

// GetValidator returns the process-wide validator with the custom tags
// registered.
func GetValidator() *validator.Validate {
	instanceOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(jsonFieldName)
		if err := v.RegisterValidation("policykey", isPolicyKey); err != nil {
			panic(fmt.Sprintf("validation: register policykey: %v", err))
		}
		if err := v.RegisterValidation("utf8text", isUTF8Text); err != nil {
			panic(fmt.Sprintf("validation: register utf8text: %v", err))
		}
		instance = v
	})
	return instance
}

// jsonFieldName reports fields by their JSON name, or the Go name when the
// field has no json tag.
func jsonFieldName(f reflect.StructField) string {
	name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return f.Name
	}
	return name
}

// isPolicyKey accepts the empty string so it can be combined with
// required or omitempty.
func isPolicyKey(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	return v == "" || (len(v) <= MaxPolicyKeyLen && policyKeyPattern.MatchString(v))
}

// isUTF8Text accepts strings and byte slices that are valid UTF-8 without
// NUL bytes, which text columns reject.
func isUTF8Text(fl validator.FieldLevel) bool {
	f := fl.Field()
	switch f.Kind() {
	case reflect.String:
		s := f.String()
		return utf8.ValidString(s) && strings.IndexByte(s, 0) < 0
	case reflect.Slice:
		if f.Type().Elem().Kind() != reflect.Uint8 {
			return false
		}
		b := f.Bytes()
		return utf8.Valid(b) && bytes.IndexByte(b, 0) < 0
	}
	return false
}

// ValidateStruct validates s and returns nil or the list of failures.
//
// The result is a concrete pointer type: compare it with nil before
// assigning it to an error variable.
func ValidateStruct(s interface{}) *RequestValidationError {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &RequestValidationError{Fields: []FieldError{{Field: "", Tag: "invalid", Message: err.Error()}}}
	}

	out := &RequestValidationError{Fields: make([]FieldError, 0, len(fieldErrs))}
	for _, fe := range fieldErrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: describe(fe),
		})
	}
	return out
}

func describe(fe validator.FieldError) string {
	field, param := fe.Field(), fe.Param()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "json":
		return field + " must be valid JSON"
	case "ip":
		return field + " must be a valid IP address"
	case "policykey":
		return fmt.Sprintf("%s must contain only letters, digits and _ . : - (max %d)", field, MaxPolicyKeyLen)
	case "utf8text":
		return field + " must be valid UTF-8 text without NUL bytes"
	case "oneof":
		return field + " must be one of: " + param
	case "gte":
		return field + " must be greater than or equal to " + param
	case "lte":
		return field + " must be less than or equal to " + param
	case "min", "max":
		bound := "at least"
		if fe.Tag() == "max" {
			bound = "at most"
		}
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be %s %s characters", field, bound, param)
		}
		return fmt.Sprintf("%s must be %s %s", field, bound, param)
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}
