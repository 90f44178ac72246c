// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package validation

import (
	"strings"
	"testing"
)

func TestGetValidator_Singleton(t *testing.T) {
	t.Parallel()

	v1 := GetValidator()
	v2 := GetValidator()
	if v1 == nil || v1 != v2 {
		t.Error("GetValidator() should return the same non-nil instance")
	}
}

type policyRequest struct {
	Module  string `validate:"required,policykey"`
	Process string `validate:"required,policykey"`
	Reason  string `validate:"max=20"`
}

type eventRequest struct {
	Action   string `validate:"required,max=64"`
	Severity string `validate:"omitempty,oneof=INFO WARNING ERROR CRITICAL"`
	Details  []byte `validate:"omitempty,json"`
	Address  string `validate:"omitempty,ip"`
}

func TestValidateStruct_Valid(t *testing.T) {
	t.Parallel()

	inputs := []any{
		&policyRequest{Module: "WorkOrder", Process: "close"},
		&policyRequest{Module: "asset.register", Process: "v2:import-batch"},
		&eventRequest{Action: "CREATE"},
		&eventRequest{Action: "UPDATE", Severity: "WARNING", Details: []byte(`{"k":1}`), Address: "10.0.0.1"},
	}

	for _, in := range inputs {
		if err := ValidateStruct(in); err != nil {
			t.Errorf("ValidateStruct(%+v) returned unexpected error: %v", in, err)
		}
	}
}

func TestValidateStruct_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     any
		wantField string
		wantTag   string
	}{
		{"missing module", &policyRequest{Process: "close"}, "Module", "required"},
		{"module with spaces", &policyRequest{Module: "work order", Process: "close"}, "Module", "policykey"},
		{"module too long", &policyRequest{Module: strings.Repeat("m", 129), Process: "close"}, "Module", "policykey"},
		{"reason too long", &policyRequest{Module: "a", Process: "b", Reason: strings.Repeat("r", 21)}, "Reason", "max"},
		{"unknown severity", &eventRequest{Action: "CREATE", Severity: "LOW"}, "Severity", "oneof"},
		{"malformed details", &eventRequest{Action: "CREATE", Details: []byte(`{"k":`)}, "Details", "json"},
		{"bad address", &eventRequest{Action: "CREATE", Address: "not-an-ip"}, "Address", "ip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateStruct(tt.input)
			if err == nil {
				t.Fatal("ValidateStruct() expected error, got nil")
			}
			if len(err.Fields) != 1 {
				t.Fatalf("expected 1 error, got %d: %v", len(err.Fields), err)
			}
			if got := err.Fields[0]; got.Field != tt.wantField || got.Tag != tt.wantTag {
				t.Errorf("got %s/%s, want %s/%s", got.Field, got.Tag, tt.wantField, tt.wantTag)
			}
		})
	}
}

func TestToAPIError(t *testing.T) {
	t.Parallel()

	single := ValidateStruct(&eventRequest{})
	if single == nil {
		t.Fatal("expected validation error")
	}
	apiErr := single.ToAPIError()
	if apiErr.Code != "VALIDATION_ERROR" {
		t.Errorf("Code = %q, want VALIDATION_ERROR", apiErr.Code)
	}
	if apiErr.Code != ErrorCode || apiErr.Message != "Action is required" {
		t.Errorf("Message = %q, want %q", apiErr.Message, "Action is required")
	}
	if apiErr.Details["field"] != "Action" {
		t.Errorf("Details[field] = %v, want Action", apiErr.Details["field"])
	}

	multi := ValidateStruct(&policyRequest{})
	if multi == nil {
		t.Fatal("expected validation error")
	}
	apiErr = multi.ToAPIError()
	if apiErr.Message != "Module is required; Process is required" {
		t.Errorf("Message = %q, want both fields listed", apiErr.Message)
	}
	if fields, ok := apiErr.Details["fields"].([]FieldError); !ok || len(fields) != 2 {
		t.Errorf("Details[fields] = %v, want two entries", apiErr.Details["fields"])
	}
}

func TestErrorMessages(t *testing.T) {
	t.Parallel()

	err := ValidateStruct(&eventRequest{Action: "CREATE", Severity: "LOW"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if got := err.Error(); got != "Severity must be one of: INFO WARNING ERROR CRITICAL" {
		t.Errorf("Error() = %q", got)
	}
}

type namedRequest struct {
	UserName string `json:"user_name" validate:"max=4"`
	Internal string `json:"-" validate:"max=1"`
}

func TestValidateStruct_ReportsJSONNames(t *testing.T) {
	t.Parallel()

	err := ValidateStruct(&namedRequest{UserName: "technician"})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if err.Fields[0].Field != "user_name" {
		t.Errorf("Field = %q, want user_name", err.Fields[0].Field)
	}
	if err.Fields[0].Message != "user_name must be at most 4 characters" {
		t.Errorf("Message = %q", err.Fields[0].Message)
	}
}

type textRequest struct {
	Path    string `json:"path" validate:"utf8text,max=16"`
	Payload []byte `json:"payload" validate:"omitempty,utf8text,json"`
}

func TestValidateStruct_UTF8Text(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     textRequest
		wantField string
	}{
		{name: "valid multibyte", input: textRequest{Path: "/pièce/é", Payload: []byte(`{"k":"ü"}`)}},
		{name: "invalid byte", input: textRequest{Path: "/events/\xff"}, wantField: "path"},
		{name: "truncated rune", input: textRequest{Path: "caf\xc3"}, wantField: "path"},
		{name: "nul byte", input: textRequest{Path: "a\x00b"}, wantField: "path"},
		{name: "invalid json bytes", input: textRequest{Payload: []byte("{\"k\":\"\xfe\"}")}, wantField: "payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := ValidateStruct(&tt.input)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("ValidateStruct() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected validation error")
			}
			if err.Fields[0].Field != tt.wantField || err.Fields[0].Tag != "utf8text" {
				t.Errorf("Fields[0] = %+v, want %s/utf8text", err.Fields[0], tt.wantField)
			}
			if !strings.Contains(err.Fields[0].Message, "valid UTF-8") {
				t.Errorf("Message = %q", err.Fields[0].Message)
			}
		})
	}
}
