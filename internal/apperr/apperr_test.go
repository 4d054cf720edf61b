package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfWrapped(t *testing.T) {
	base := New(Validation, "too few columns")
	wrapped := fmt.Errorf("parse upload: %w", base)

	assert.Equal(t, Validation, KindOf(wrapped))
	assert.True(t, Is(wrapped, Validation))
	assert.False(t, Is(wrapped, Format))
	assert.Equal(t, Unknown, KindOf(errors.New("plain")))
	assert.False(t, Is(nil, Unknown))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{Format, http.StatusBadRequest},
		{Validation, http.StatusBadRequest},
		{Unavailable, http.StatusInternalServerError},
		{Decode, http.StatusInternalServerError},
		{Processing, http.StatusInternalServerError},
		{Unknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.HTTPStatus())
		})
	}
}

func TestErrorText(t *testing.T) {
	cause := errors.New("EOF")
	err := Wrap(Format, cause, "could not parse csv")

	assert.Equal(t, "could not parse csv: EOF", err.Error())
	assert.Equal(t, "could not parse csv", Message(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "EOF", Message(cause))
}
