package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phrazzld/tasknotify/internal/metrics"
	"github.com/phrazzld/tasknotify/internal/mocks"
	"github.com/phrazzld/tasknotify/internal/service/auth"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAuthenticate(t *testing.T) {
	tokens := mocks.TokenMap(map[string]string{"good": "u1"})

	tests := []struct {
		name       string
		header     string
		validateErr error
		wantStatus int
		wantUser   string
	}{
		{name: "valid bearer", header: "Bearer good", wantStatus: http.StatusOK, wantUser: "u1"},
		{name: "case insensitive scheme", header: "bearer good", wantStatus: http.StatusOK, wantUser: "u1"},
		{name: "missing header", wantStatus: http.StatusUnauthorized},
		{name: "no scheme", header: "good", wantStatus: http.StatusUnauthorized},
		{name: "empty token", header: "Bearer  ", wantStatus: http.StatusUnauthorized},
		{name: "unknown token", header: "Bearer bad", wantStatus: http.StatusUnauthorized},
		{
			name:       "expired token",
			header:     "Bearer good",
			validateErr: auth.ErrExpiredToken,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "unexpected validation failure",
			header:     "Bearer good",
			validateErr: errors.New("key store unavailable"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jwt := &mocks.MockJWTService{ValidateTokenFn: tokens}
			if tt.validateErr != nil {
				jwt = &mocks.MockJWTService{ValidateErr: tt.validateErr}
			}

			var gotUser string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser, _ = GetUserID(r)
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			before := testutil.ToFloat64(metrics.AuthFailures)
			NewAuthMiddleware(jwt).Authenticate(next).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantUser, gotUser)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, before, testutil.ToFloat64(metrics.AuthFailures))
			} else {
				assert.Equal(t, before+1, testutil.ToFloat64(metrics.AuthFailures))
			}
		})
	}
}
