package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/selkies/backend/internal/domain/catalog"
	"github.com/selkies/backend/internal/domain/subscription"
	"github.com/selkies/backend/internal/interfaces/http/dto"
	"github.com/selkies/backend/internal/interfaces/http/middleware"
)

// stubCatalog returns a fixed snapshot, or an error with an empty one
type stubCatalog struct {
	snapshot catalog.Snapshot
	err      error
}

func (s stubCatalog) Snapshot(context.Context) (catalog.Snapshot, error) {
	return s.snapshot, s.err
}

// MockOrderRepository is a mock implementation of subscription.OrderRepository
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Save(ctx context.Context, order *subscription.Order) error {
	return m.Called(ctx, order).Error(0)
}

func (m *MockOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*subscription.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Order), args.Error(1)
}

func (m *MockOrderRepository) FindByPaymentReference(ctx context.Context, ref string) (*subscription.Order, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Order), args.Error(1)
}

func (m *MockOrderRepository) FindByPlanID(ctx context.Context, planID uuid.UUID) (*subscription.Order, error) {
	args := m.Called(ctx, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.Order), args.Error(1)
}

// MockPaymentGateway is a mock implementation of subscription.PaymentGateway
type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) CreatePayment(ctx context.Context, req *subscription.CreatePaymentRequest) (*subscription.CreatePaymentResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.CreatePaymentResponse), args.Error(1)
}

func (m *MockPaymentGateway) QueryPayment(ctx context.Context, paymentID string) (*subscription.PaymentResult, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*subscription.PaymentResult), args.Error(1)
}

func (m *MockPaymentGateway) CancelPayment(ctx context.Context, paymentID string) error {
	return m.Called(ctx, paymentID).Error(0)
}

// client replays the plan session token on every request, like a browser
// replays the cookie
type client struct {
	t      *testing.T
	router *gin.Engine
	token  string
}

func (cl *client) do(method, path string, body any) *httptest.ResponseRecorder {
	cl.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(cl.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if cl.token != "" {
		req.Header.Set(middleware.SessionHeader, cl.token)
	}
	w := httptest.NewRecorder()
	cl.router.ServeHTTP(w, req)
	if token := w.Header().Get(middleware.SessionHeader); token != "" {
		cl.token = token
	}
	return w
}

// decode unmarshals the response envelope and returns its data as a map
func decode(t *testing.T, w *httptest.ResponseRecorder) (dto.Response, map[string]any) {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	data, _ := resp.Data.(map[string]any)
	return resp, data
}

// Monday 2026-10-19, so the next delivery day is Tuesday 2026-10-20
var testNow = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

func jsonBody(s string) *bytes.Reader {
	return bytes.NewReader([]byte(s))
}
