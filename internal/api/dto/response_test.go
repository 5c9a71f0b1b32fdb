package dto

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStatusToErrorCode(t *testing.T) {
	cases := []struct {
		status int
		want   string
	}{
		{http.StatusBadRequest, ErrCodeBadRequest},
		{http.StatusUnauthorized, ErrCodeUnauthorized},
		{http.StatusForbidden, ErrCodeForbidden},
		{http.StatusNotFound, ErrCodeNotFound},
		{http.StatusConflict, ErrCodeConflict},
		{http.StatusTooManyRequests, ErrCodeTooManyRequest},
		{http.StatusInternalServerError, ErrCodeInternalServer},
		{http.StatusServiceUnavailable, ErrCodeServiceUnavail},
		{http.StatusGatewayTimeout, ErrCodeTimeout},
		{http.StatusRequestTimeout, ErrCodeTimeout},
		{http.StatusTeapot, http.StatusText(http.StatusTeapot)},
	}

	for _, c := range cases {
		if got := statusToErrorCode(c.status); got != c.want {
			t.Errorf("statusToErrorCode(%d) = %q, want %q", c.status, got, c.want)
		}
	}
}

func TestHandleServiceErrorMapsKnownErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", ErrNotFound, http.StatusNotFound},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"conflict", ErrConflict, http.StatusConflict},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"unrecognized", errInternal{}, http.StatusInternalServerError},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			HandleServiceError(w, c.err)
			if w.Code != c.want {
				t.Errorf("status = %d, want %d", w.Code, c.want)
			}
		})
	}
}

type errInternal struct{}

func (errInternal) Error() string { return "something broke" }

func TestJSONSetsSuccessFromStatus(t *testing.T) {
	w := httptest.NewRecorder()
	JSON(w, http.StatusCreated, map[string]string{"id": "abc"})

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Success {
		t.Error("2xx status should mark the response successful")
	}
}

func TestErrorResponseMarksFailure(t *testing.T) {
	w := httptest.NewRecorder()
	ErrorResponse(w, http.StatusConflict, "already running")

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Success {
		t.Error("error response should not be marked successful")
	}
	if resp.Error == nil || resp.Error.Code != ErrCodeConflict {
		t.Errorf("error code = %+v, want %s", resp.Error, ErrCodeConflict)
	}
}

func TestWorkflowValidationErrorResponsePrefixesNodeField(t *testing.T) {
	w := httptest.NewRecorder()
	WorkflowValidationErrorResponse(w, []WorkflowValidationError{
		{Field: "timeout_seconds", NodeID: "n1", Message: "must be positive"},
		{Field: "name", Message: "required"},
	})

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(resp.Error.Details) != 2 {
		t.Fatalf("details len = %d, want 2", len(resp.Error.Details))
	}
	if resp.Error.Details[0].Field != "node:n1.timeout_seconds" {
		t.Errorf("field = %q, want node-prefixed", resp.Error.Details[0].Field)
	}
	if resp.Error.Details[1].Field != "name" {
		t.Errorf("field = %q, want unprefixed name", resp.Error.Details[1].Field)
	}
}
