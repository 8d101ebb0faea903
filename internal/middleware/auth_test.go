package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/2beens/jaeronautics/internal/auth"
	"github.com/2beens/jaeronautics/internal/middleware"
	"github.com/2beens/jaeronautics/internal/session"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func TestRequireSession(t *testing.T) {
	testCases := []struct {
		name               string
		decision           auth.Decision
		expectedStatusCode int
		expectedLocation   string
		expectNextCalled   bool
		expectedUsername   string
	}{
		{
			name:               "Authorized",
			decision:           auth.Authorized{Username: "admin"},
			expectedStatusCode: http.StatusOK,
			expectNextCalled:   true,
			expectedUsername:   "admin",
		},
		{
			name:               "RedirectToLogin",
			decision:           auth.RedirectToLogin{Target: "/login"},
			expectedStatusCode: http.StatusFound,
			expectedLocation:   "/login",
		},
		{
			name:               "NoDecision",
			decision:           nil,
			expectedStatusCode: http.StatusFound,
			expectedLocation:   "/login",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			checker := NewMocksessionChecker(ctrl)
			checker.EXPECT().Check(gomock.Any(), gomock.Any()).Return(tc.decision)

			nextCalled := false
			var username string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				nextCalled = true
				username, _ = session.UsernameFromContext(r.Context())
			})

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/members", nil)
			middleware.RequireSession(checker)(next).ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedStatusCode, rr.Code)
			assert.Equal(t, tc.expectedLocation, rr.Header().Get("Location"))
			assert.Equal(t, tc.expectNextCalled, nextCalled)
			assert.Equal(t, tc.expectedUsername, username)
		})
	}
}
