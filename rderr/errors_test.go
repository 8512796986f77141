package rderr

import (
	"errors"
	"net/http"
	"testing"
)

func TestClassify_UnknownErrorIsResourceDriverError(t *testing.T) {
	if got := Classify(errors.New("boom")); !errors.Is(got, ErrResourceDriverError) {
		t.Fatalf("expected ErrResourceDriverError, got %v", got)
	}
}

func TestClassify_WrappedDriverError(t *testing.T) {
	err := New(ErrTemporaryResourceDriverError, "poll", errors.New("connection reset"))
	if !IsTemporary(err) {
		t.Fatalf("expected IsTemporary(err) to be true")
	}
	if IsNotFound(err) {
		t.Fatalf("expected IsNotFound(err) to be false")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{New(ErrInvalidDriverFiles, "build_tree", nil), http.StatusBadRequest},
		{New(ErrRequestNotFound, "poll", nil), http.StatusBadRequest},
		{New(ErrTemporaryResourceDriverError, "poll", nil), http.StatusServiceUnavailable},
		{New(ErrResourceDriverError, "dispatch", nil), http.StatusInternalServerError},
		{errors.New("unclassified"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := HTTPStatus(c.err); got != c.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestDriverError_UnwrapAndIs(t *testing.T) {
	cause := errors.New("central directory not found")
	err := New(ErrInvalidDriverFiles, "extract", cause)

	if !errors.Is(err, ErrInvalidDriverFiles) {
		t.Fatalf("expected errors.Is to match ErrInvalidDriverFiles")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Unwrap chain to reach cause")
	}
}
