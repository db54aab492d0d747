package handler

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	subscriptionapp "github.com/selkies/backend/internal/application/subscription"
	"github.com/selkies/backend/internal/domain/catalog"
	"github.com/selkies/backend/internal/domain/delivery"
	"github.com/selkies/backend/internal/domain/shared/valueobject"
	"github.com/selkies/backend/internal/domain/subscription"
	"github.com/selkies/backend/internal/infrastructure/cache"
	"github.com/selkies/backend/internal/interfaces/http/dto"
	"github.com/selkies/backend/internal/interfaces/http/middleware"
)

type planFixture struct {
	router  *gin.Engine
	orders  *MockOrderRepository
	gateway *MockPaymentGateway
	bread   catalog.Product
	puff    catalog.Product
}

func newPlanFixture(t *testing.T, catalogErr error) *planFixture {
	t.Helper()
	bread, err := catalog.NewProduct("Sourdough", "Artisanal Breads", valueobject.NewMoneyINRFromInt(50))
	require.NoError(t, err)
	puff, err := catalog.NewProduct("Veg Puff", "Savouries", valueobject.NewMoneyINRFromInt(100))
	require.NoError(t, err)

	snapshot := catalog.NewSnapshot([]catalog.Product{bread, puff})
	if catalogErr != nil {
		snapshot = catalog.NewSnapshot(nil)
	}

	store := cache.NewInMemorySessionStore(time.Hour)
	t.Cleanup(func() { _ = store.Close() })

	f := &planFixture{
		orders:  new(MockOrderRepository),
		gateway: new(MockPaymentGateway),
		bread:   bread,
		puff:    puff,
	}
	svc := subscriptionapp.NewService(store, stubCatalog{snapshot: snapshot, err: catalogErr}, f.orders, zap.NewNop(),
		subscriptionapp.WithGateway(f.gateway),
		subscriptionapp.WithCalendar(delivery.NewCalendar(delivery.WithClock(func() time.Time { return testNow }))),
	)

	f.router = gin.New()
	f.router.Use(middleware.RequestID())
	api := f.router.Group("/api/v1")
	NewPlanHandler(svc, middleware.NewSessionCookie(middleware.SessionCookieConfig{MaxAge: time.Hour})).RegisterRoutes(api)
	NewDeliveryHandler(svc).RegisterRoutes(api)
	return f
}

func (f *planFixture) client(t *testing.T) *client {
	return &client{t: t, router: f.router}
}

func TestPlanHandler_RequiresSession(t *testing.T) {
	f := newPlanFixture(t, nil)
	cl := f.client(t)

	w := cl.do(http.MethodGet, "/api/v1/plans/current", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	resp, _ := decode(t, w)
	assert.Equal(t, dto.ErrCodeSessionRequired, resp.Error.Code)
	assert.NotEmpty(t, resp.Error.RequestID)
}

func TestPlanHandler_Start(t *testing.T) {
	f := newPlanFixture(t, nil)
	cl := f.client(t)

	w := cl.do(http.MethodPost, "/api/v1/plans", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, cl.token)
	require.Len(t, w.Result().Cookies(), 1)

	_, data := decode(t, w)
	assert.Equal(t, "UNCONFIGURED", data["state"])
	assert.Equal(t, true, data["catalog_available"])

	w = cl.do(http.MethodGet, "/api/v1/plans/current", nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, current := decode(t, w)
	assert.Equal(t, data["id"], current["id"])
}

func TestPlanHandler_StartDegradedCatalog(t *testing.T) {
	f := newPlanFixture(t, fmt.Errorf("database down"))
	cl := f.client(t)

	w := cl.do(http.MethodPost, "/api/v1/plans", nil)
	require.Equal(t, http.StatusCreated, w.Code)

	_, data := decode(t, w)
	assert.Equal(t, false, data["catalog_available"])
}

func TestPlanHandler_FullFlow(t *testing.T) {
	f := newPlanFixture(t, nil)
	cl := f.client(t)

	require.Equal(t, http.StatusCreated, cl.do(http.MethodPost, "/api/v1/plans", nil).Code)

	w := cl.do(http.MethodPut, "/api/v1/plans/current/recurrence", gin.H{"recurrence": "one-time"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = cl.do(http.MethodPut, "/api/v1/plans/current/dates", gin.H{"start_date": "2026-10-20"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, data := decode(t, w)
	assert.Equal(t, "2026-10-20", data["start_date"])

	path := fmt.Sprintf("/api/v1/plans/current/days/tuesday/items/%s/increment", f.bread.ID)
	require.Equal(t, http.StatusOK, cl.do(http.MethodPost, path, nil).Code)
	w = cl.do(http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, data = decode(t, w)
	assert.Equal(t, float64(2), data["total_items"])

	w = cl.do(http.MethodGet, "/api/v1/plans/current/quote", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, quote := decode(t, w)
	assert.Equal(t, float64(10000), quote["total_minor"])

	address := gin.H{"recipient": "Asha", "line1": "12 MG Road", "city": "Bengaluru", "postal_code": "400001"}
	w = cl.do(http.MethodPut, "/api/v1/plans/current/address", address)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp, _ := decode(t, w)
	assert.Equal(t, dto.ErrCodeUnserviceableAddress, resp.Error.Code)

	address["postal_code"] = "560001"
	w = cl.do(http.MethodPut, "/api/v1/plans/current/address", address)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	f.gateway.On("CreatePayment", mock.Anything, mock.MatchedBy(func(req *subscription.CreatePaymentRequest) bool {
		return req.AmountMinor == 10000 && req.Currency == valueobject.INR
	})).Return(&subscription.CreatePaymentResponse{
		PaymentID:    "pi_123",
		ClientSecret: "pi_123_secret",
		Status:       subscription.PaymentStatusPending,
	}, nil).Once()

	w = cl.do(http.MethodPost, "/api/v1/plans/current/checkout", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, checkout := decode(t, w)
	assert.Equal(t, "pi_123", checkout["payment_id"])
	assert.Equal(t, "pi_123_secret", checkout["client_secret"])

	f.gateway.On("QueryPayment", mock.Anything, "pi_123").Return(&subscription.PaymentResult{
		PaymentID:   "pi_123",
		Status:      subscription.PaymentStatusSucceeded,
		AmountMinor: 10000,
		Currency:    valueobject.INR,
	}, nil).Once()
	f.orders.On("Save", mock.Anything, mock.AnythingOfType("*subscription.Order")).Return(nil).Once()

	w = cl.do(http.MethodPost, "/api/v1/plans/current/payment/confirm", gin.H{"payment_id": "pi_123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, outcome := decode(t, w)
	assert.Equal(t, "SUCCEEDED", outcome["status"])
	order := outcome["order"].(map[string]any)
	assert.Equal(t, "pi_123", order["payment_reference"])

	f.gateway.AssertExpectations(t)
	f.orders.AssertExpectations(t)
}

func TestPlanHandler_Errors(t *testing.T) {
	f := newPlanFixture(t, nil)
	cl := f.client(t)
	require.Equal(t, http.StatusCreated, cl.do(http.MethodPost, "/api/v1/plans", nil).Code)

	t.Run("validation", func(t *testing.T) {
		w := cl.do(http.MethodPut, "/api/v1/plans/current/recurrence", gin.H{})
		require.Equal(t, http.StatusBadRequest, w.Code)
		resp, _ := decode(t, w)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		require.Len(t, resp.Error.Details, 1)
		assert.Equal(t, "recurrence", resp.Error.Details[0].Field)
	})

	t.Run("unknown recurrence", func(t *testing.T) {
		w := cl.do(http.MethodPut, "/api/v1/plans/current/recurrence", gin.H{"recurrence": "weekly"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("dates before recurrence", func(t *testing.T) {
		w := cl.do(http.MethodPut, "/api/v1/plans/current/dates", gin.H{"start_date": "2026-10-20"})
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		resp, _ := decode(t, w)
		assert.Equal(t, dto.ErrCodeInvalidState, resp.Error.Code)
	})

	t.Run("non delivery day", func(t *testing.T) {
		require.Equal(t, http.StatusOK,
			cl.do(http.MethodPut, "/api/v1/plans/current/recurrence", gin.H{"recurrence": "recurring"}).Code)
		w := cl.do(http.MethodPut, "/api/v1/plans/current/dates", gin.H{"start_date": "2026-10-21"})
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		resp, _ := decode(t, w)
		assert.Equal(t, dto.ErrCodeInvalidDeliveryDate, resp.Error.Code)
	})

	t.Run("bad product id", func(t *testing.T) {
		w := cl.do(http.MethodPost, "/api/v1/plans/current/days/tuesday/items/not-a-uuid/increment", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("checkout with empty basket", func(t *testing.T) {
		w := cl.do(http.MethodPost, "/api/v1/plans/current/checkout", nil)
		assert.GreaterOrEqual(t, w.Code, 400)
		assert.Less(t, w.Code, 500)
		f.gateway.AssertNotCalled(t, "CreatePayment", mock.Anything, mock.Anything)
	})
}

func TestPlanHandler_CopyDay(t *testing.T) {
	f := newPlanFixture(t, nil)
	cl := f.client(t)
	require.Equal(t, http.StatusCreated, cl.do(http.MethodPost, "/api/v1/plans", nil).Code)
	require.Equal(t, http.StatusOK, cl.do(http.MethodPut, "/api/v1/plans/current/recurrence", gin.H{"recurrence": "recurring"}).Code)
	require.Equal(t, http.StatusOK, cl.do(http.MethodPut, "/api/v1/plans/current/dates", gin.H{"start_date": "2026-10-20"}).Code)

	path := fmt.Sprintf("/api/v1/plans/current/days/tuesday/items/%s/increment", f.puff.ID)
	require.Equal(t, http.StatusOK, cl.do(http.MethodPost, path, nil).Code)

	w := cl.do(http.MethodPost, "/api/v1/plans/current/days/tuesday/copy", gin.H{"to": "saturday"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, data := decode(t, w)
	assert.Equal(t, float64(2), data["total_items"])

	path = fmt.Sprintf("/api/v1/plans/current/days/saturday/items/%s/decrement", f.puff.ID)
	w = cl.do(http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	_, data = decode(t, w)
	assert.Equal(t, float64(1), data["total_items"])

	w = cl.do(http.MethodPut, "/api/v1/plans/current/end-date", gin.H{"end_date": "2026-11-28"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	_, data = decode(t, w)
	assert.Equal(t, "2026-11-28", data["end_date"])
}

func TestPlanHandler_Abandon(t *testing.T) {
	f := newPlanFixture(t, nil)
	cl := f.client(t)
	require.Equal(t, http.StatusCreated, cl.do(http.MethodPost, "/api/v1/plans", nil).Code)

	w := cl.do(http.MethodDelete, "/api/v1/plans/current", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, -1, cookies[len(cookies)-1].MaxAge)

	// The token is still well signed, but the session is gone
	w = cl.do(http.MethodGet, "/api/v1/plans/current", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	resp, _ := decode(t, w)
	assert.Equal(t, dto.ErrCodeSessionExpired, resp.Error.Code)
}
