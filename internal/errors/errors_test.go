package errors_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrs "github.com/cicconel11/TeamNetwork-sub006/internal/errors"
)

func TestEConstructor(t *testing.T) {
	got := apperrs.E(
		"something went wrong",
		apperrs.Detail{Field: "url", Error: "required for ics feeds"},
		http.StatusBadRequest,
	)
	want := &apperrs.Error{
		Err: errors.New("something went wrong"),
		Details: []apperrs.Detail{
			{Field: "url", Error: "required for ics feeds"},
		},
		Status: http.StatusBadRequest,
	}

	assert.Equal(t, want, got)
}

func TestEDefaultsToInternal(t *testing.T) {
	got := apperrs.E("oops")
	assert.Equal(t, http.StatusInternalServerError, got.Status)
}

func TestUnwrap(t *testing.T) {
	sentinel := errors.New("not found")
	got := apperrs.E(http.StatusNotFound, sentinel)

	assert.True(t, errors.Is(got, sentinel))
}
