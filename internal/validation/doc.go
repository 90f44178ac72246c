// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

// Package validation provides struct validation using go-playground/validator v10.
//
// A single validator instance is shared process-wide so struct metadata is
// cached once. Audit events and API request bodies carry `validate` tags;
// failures come back as *RequestValidationError, which converts to the API
// error envelope through ToAPIError.
//
// Custom tags:
//   - policykey: module/process identifiers (letters, digits, _ . : -)
//
// Example:
//
//	type PolicyRequest struct {
//	    Module  string `json:"module" validate:"required,policykey"`
//	    Process string `json:"process" validate:"required,policykey"`
//	}
//
//	if verr := validation.ValidateStruct(&req); verr != nil {
//	    apiErr := verr.ToAPIError()
//	    respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, verr)
//	    return
//	}
package validation
