package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorString(t *testing.T) {
	withCode := NewTransportError("page fetch failed", http.StatusBadGateway, nil)
	assert.Equal(t, "transport error (code 502): page fetch failed", withCode.Error())

	noCode := NewShapeError("no item list")
	assert.Equal(t, "shape error: no item list", noCode.Error())
}

func TestFromStatus(t *testing.T) {
	tests := []struct {
		code int
		want ErrorType
	}{
		{http.StatusUnauthorized, ErrorTypeAuth},
		{http.StatusForbidden, ErrorTypeAuth},
		{http.StatusNotFound, ErrorTypeNotFound},
		{http.StatusTooManyRequests, ErrorTypeRateLimit},
		{http.StatusInternalServerError, ErrorTypeServerError},
		{http.StatusServiceUnavailable, ErrorTypeServerError},
		{http.StatusBadRequest, ErrorTypeTransport},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			err := FromStatus(tt.code, "boom")
			assert.Equal(t, tt.want, err.Type)
			assert.Equal(t, tt.code, err.Code)
		})
	}
}

func TestIsTypeThroughWrapping(t *testing.T) {
	base := NewDuplicatePageError("page repeated")
	wrapped := fmt.Errorf("paginate collection 42: %w", base)

	assert.True(t, IsType(wrapped, ErrorTypeDuplicatePage))
	assert.False(t, IsType(wrapped, ErrorTypeAuth))
	assert.False(t, IsType(stderrors.New("plain"), ErrorTypeAuth))
	assert.Equal(t, ErrorTypeUnknown, TypeOf(stderrors.New("plain")))
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := NewTransportError("network error", 0, cause)
	assert.ErrorIs(t, err, cause)
}

func TestIsTransportFailure(t *testing.T) {
	assert.True(t, IsTransportFailure(FromStatus(500, "x")))
	assert.True(t, IsTransportFailure(NewTransportError("x", 0, nil)))
	assert.False(t, IsTransportFailure(NewAuthenticationError("x", 401)))
	assert.False(t, IsTransportFailure(nil))
}
