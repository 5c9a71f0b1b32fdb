package execerr

import (
	"errors"
	"testing"
)

func TestClassifyUnwrapsWrappedError(t *testing.T) {
	cause := errors.New("boom")
	wrapped := Wrap(TransientInfrastructure, "broker unavailable", cause)
	outer := errors.New("context: " + wrapped.Error())
	_ = outer // not an *Error, exercised separately below

	if got := Classify(wrapped); got != TransientInfrastructure {
		t.Errorf("Classify(wrapped) = %v, want %v", got, TransientInfrastructure)
	}
}

func TestClassifyDefaultsToUserFailure(t *testing.T) {
	if got := Classify(errors.New("plain stdlib error")); got != UserFailure {
		t.Errorf("Classify(plain error) = %v, want %v", got, UserFailure)
	}
}

func TestClassifyNilIsEmpty(t *testing.T) {
	if got := Classify(nil); got != "" {
		t.Errorf("Classify(nil) = %v, want empty", got)
	}
}

func TestTerminal(t *testing.T) {
	if TransientInfrastructure.Terminal() {
		t.Error("TransientInfrastructure.Terminal() = true, want false")
	}
	for _, k := range []Kind{NotAuthorized, WorkflowNotFound, Timeout, Cancelled, Stuck, UserFailure} {
		if !k.Terminal() {
			t.Errorf("%v.Terminal() = false, want true", k)
		}
	}
}

func TestExecutionStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want string
	}{
		{NotAuthorized, ""},
		{WorkflowNotFound, "failed"},
		{ValidationError, "failed"},
		{UserFailure, "failed"},
		{Timeout, "timeout"},
		{Cancelled, "cancelled"},
		{Stuck, "stuck"},
		{AdmissionExpired, "failed"},
		{DeliveryFailure, "failed"},
	}

	for _, c := range cases {
		if got := ExecutionStatus(c.kind); got != c.want {
			t.Errorf("ExecutionStatus(%v) = %q, want %q", c.kind, got, c.want)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("underlying")
	wrapped := Wrap(UserFailure, "script raised", cause)

	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is(wrapped, cause) = false, want true")
	}
	if wrapped.Error() != "script raised: underlying" {
		t.Errorf("Error() = %q", wrapped.Error())
	}
}
