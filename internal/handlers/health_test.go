package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/mock/gomock"

	"klee-ai/internal/vectorstore/mocks"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealthHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name            string
		pingErr         error
		vsErr           error
		wantStatus      int
		wantStatusField string
		wantIssues      int
	}{
		{name: "healthy", wantStatus: http.StatusOK, wantStatusField: "healthy"},
		{name: "database down", pingErr: errors.New("closed"), wantStatus: http.StatusServiceUnavailable, wantStatusField: "unhealthy", wantIssues: 1},
		{name: "both down", pingErr: errors.New("closed"), vsErr: errors.New("dial tcp"), wantStatus: http.StatusServiceUnavailable, wantStatusField: "unhealthy", wantIssues: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			vs := mocks.NewMockVectorStore(ctrl)
			vs.EXPECT().CollectionExists(gomock.Any(), healthCheckCollection).Return(false, tt.vsErr)

			h := NewHealthHandler(pingerFunc(func(context.Context) error { return tt.pingErr }), vs)
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Status != tt.wantStatusField {
				t.Errorf("status field = %q, want %q", resp.Status, tt.wantStatusField)
			}
			if len(resp.Issues) != tt.wantIssues {
				t.Errorf("issues = %v, want %d", resp.Issues, tt.wantIssues)
			}
		})
	}
}
