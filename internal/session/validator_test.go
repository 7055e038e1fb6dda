package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invodesk/internal/security"
)

func testFields() security.SignedFields {
	return security.SignedFields{
		UserID:    "u1",
		Email:     "owner@example.com",
		Role:      "admin",
		IssuedAt:  1756700000000,
		ExpiresAt: 1756786400000,
	}
}

func TestHTTPValidatorSubmitsPayload(t *testing.T) {
	var got ValidationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(ValidationResponse{Valid: true})
	}))
	defer srv.Close()

	v := NewHTTPValidator(srv.URL, 3*time.Second, nil, nil)
	clientTime := time.UnixMilli(1756750000000)

	valid, err := v.Validate(context.Background(), testFields(), "deadbeef", clientTime)
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, testFields(), got.SessionData)
	assert.Equal(t, "deadbeef", got.ClientSignature)
	assert.Equal(t, clientTime.UnixMilli(), got.ClientTime)
}

func TestHTTPValidatorRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ValidationResponse{Valid: false})
	}))
	defer srv.Close()

	v := NewHTTPValidator(srv.URL, 3*time.Second, nil, nil)
	valid, err := v.Validate(context.Background(), testFields(), "deadbeef", time.Now())
	require.NoError(t, err, "a definitive verdict is not a transport error")
	assert.False(t, valid)
}

func TestHTTPValidatorTransportFailures(t *testing.T) {
	t.Run("unreachable endpoint", func(t *testing.T) {
		v := NewHTTPValidator("http://127.0.0.1:1/validate", 100*time.Millisecond, nil, nil)
		_, err := v.Validate(context.Background(), testFields(), "sig", time.Now())
		assert.Error(t, err)
	})

	t.Run("server error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		v := NewHTTPValidator(srv.URL, time.Second, nil, nil)
		_, err := v.Validate(context.Background(), testFields(), "sig", time.Now())
		assert.Error(t, err)
	})

	t.Run("slow endpoint times out", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(300 * time.Millisecond)
			json.NewEncoder(w).Encode(ValidationResponse{Valid: true})
		}))
		defer srv.Close()

		v := NewHTTPValidator(srv.URL, 50*time.Millisecond, nil, nil)
		start := time.Now()
		_, err := v.Validate(context.Background(), testFields(), "sig", time.Now())
		assert.Error(t, err)
		assert.Less(t, time.Since(start), 250*time.Millisecond, "timeout bounds the call")
	})
}

func TestHTTPValidatorOnlineProbe(t *testing.T) {
	v := NewHTTPValidator("http://unused", time.Second, func() bool { return false }, nil)
	assert.False(t, v.Online())

	v = NewHTTPValidator("http://unused", time.Second, nil, nil)
	assert.True(t, v.Online(), "nil probe assumes online")
}
