package order

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/cafe/internal/config"
	"github.com/Additional-Code/cafe/internal/dto"
	httpserver "github.com/Additional-Code/cafe/internal/server/http"
	"github.com/Additional-Code/cafe/internal/transport/http/middleware"
	"github.com/Additional-Code/cafe/pkg/errorbank"
)

type fakeService struct {
	created    dto.CreateOrderRequest
	statusID   string
	status     string
	deleted    string
	start, end time.Time
	page, size int
	err        error
}

func (f *fakeService) order(id string) *dto.OrderResponse {
	return &dto.OrderResponse{ID: id, Status: "PENDING", TotalAmount: decimal.RequireFromString("9.50")}
}

func (f *fakeService) list() ([]dto.OrderResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []dto.OrderResponse{*f.order("o-1")}, nil
}

func (f *fakeService) CreateOrder(_ context.Context, req dto.CreateOrderRequest) (*dto.OrderResponse, error) {
	f.created = req
	if f.err != nil {
		return nil, f.err
	}
	return f.order("o-new"), nil
}

func (f *fakeService) UpdateOrderStatus(_ context.Context, id, status string) (*dto.OrderResponse, error) {
	f.statusID, f.status = id, status
	if f.err != nil {
		return nil, f.err
	}
	out := f.order(id)
	out.Status = status
	return out, nil
}

func (f *fakeService) DeleteOrder(_ context.Context, id string) error {
	f.deleted = id
	return f.err
}

func (f *fakeService) GetByID(_ context.Context, id string) (*dto.OrderResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.order(id), nil
}

func (f *fakeService) GetAll(context.Context) ([]dto.OrderResponse, error) { return f.list() }

func (f *fakeService) GetByStatus(context.Context, string) ([]dto.OrderResponse, error) {
	return f.list()
}

func (f *fakeService) GetByTable(context.Context, string) ([]dto.OrderResponse, error) {
	return f.list()
}

func (f *fakeService) GetActive(context.Context) ([]dto.OrderResponse, error) { return nil, f.err }

func (f *fakeService) GetByDateRange(_ context.Context, start, end time.Time) ([]dto.OrderResponse, error) {
	f.start, f.end = start, end
	return f.list()
}

func (f *fakeService) GetByDateRangePage(_ context.Context, start, end time.Time, page, size int) (*dto.Page[dto.OrderResponse], error) {
	f.start, f.end, f.page, f.size = start, end, page, size
	if f.err != nil {
		return nil, f.err
	}
	result := dto.NewPage([]dto.OrderResponse{*f.order("o-1")}, page, size, 1)
	return &result, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Meta    map[string]any  `json:"meta"`
	Error   struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	} `json:"error"`
}

func newServer(svc OrderService, cfg config.Config) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = httpserver.ErrorHandler(zap.NewNop())
	Register(e, NewHandler(svc), cfg)
	return e
}

func do(t *testing.T, e *echo.Echo, method, target, body string, header http.Header) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestCreateOrderReturnsCreated(t *testing.T) {
	svc := &fakeService{}
	e := newServer(svc, config.Config{})

	rec, env := do(t, e, http.MethodPost, "/orders",
		`{"tableId":"t-1","customerName":"Ana","items":[{"productId":"p-1","quantity":2}]}`, nil)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "t-1", svc.created.TableID)
	require.Len(t, svc.created.Items, 1)
	assert.Equal(t, 2, svc.created.Items[0].Quantity)

	var order dto.OrderResponse
	require.NoError(t, json.Unmarshal(env.Data, &order))
	assert.Equal(t, "o-new", order.ID)
}

func TestCreateOrderRejectsMalformedBody(t *testing.T) {
	e := newServer(&fakeService{}, config.Config{})

	rec, env := do(t, e, http.MethodPost, "/orders", `{"tableId":`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, string(errorbank.KindBadRequest), env.Error.Kind)
}

func TestServiceErrorsMapToStatus(t *testing.T) {
	cases := map[string]struct {
		err  error
		code int
	}{
		"validation": {errorbank.Validation("quantity must be at least 1"), http.StatusBadRequest},
		"not found":  {errorbank.NotFound("order o-9 not found"), http.StatusNotFound},
		"internal":   {errorbank.Internal("failed to save order"), http.StatusInternalServerError},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			e := newServer(&fakeService{err: tc.err}, config.Config{})

			rec, env := do(t, e, http.MethodGet, "/orders/o-9", "", nil)

			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, errorbank.From(tc.err).Message(), env.Error.Message)
		})
	}
}

func TestStaticRoutesWinOverID(t *testing.T) {
	e := newServer(&fakeService{}, config.Config{})

	rec, env := do(t, e, http.MethodGet, "/orders/active", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(env.Data))
	assert.EqualValues(t, 0, env.Meta["count"])
}

func TestListByTable(t *testing.T) {
	e := newServer(&fakeService{}, config.Config{})

	rec, env := do(t, e, http.MethodGet, "/orders/table/t-1", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, env.Meta["count"])
}

func TestListRoutesRenderCount(t *testing.T) {
	e := newServer(&fakeService{}, config.Config{})

	for _, target := range []string{
		"/orders",
		"/orders/status/READY",
		"/orders/table/t-1",
		"/orders/date-range?startDate=2024-03-01T08:00:00&endDate=2024-03-01T18:00:00",
	} {
		rec, env := do(t, e, http.MethodGet, target, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, target)
		assert.EqualValues(t, 1, env.Meta["count"], target)
	}
}

func TestListRoutesSurfaceServiceErrors(t *testing.T) {
	e := newServer(&fakeService{err: errorbank.Validation("unknown order status")}, config.Config{})

	rec, env := do(t, e, http.MethodGet, "/orders/status/WAITING", "", nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown order status", env.Error.Message)
}

func TestCreateOrderIsRateLimited(t *testing.T) {
	cfg := config.Config{RateLimit: config.RateLimit{Enabled: true, PerSecond: 0.001, Burst: 1, ExpiresIn: time.Minute}}
	e := newServer(&fakeService{}, cfg)
	body := `{"tableId":"t-1","items":[{"productId":"p-1","quantity":1}]}`

	rec, _ := do(t, e, http.MethodPost, "/orders", body, nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, env := do(t, e, http.MethodPost, "/orders", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.False(t, env.Success)
}

func TestUpdateStatus(t *testing.T) {
	svc := &fakeService{}
	e := newServer(svc, config.Config{})

	rec, _ := do(t, e, http.MethodPatch, "/orders/o-1/status", `{"status":"READY"}`, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "o-1", svc.statusID)
	assert.Equal(t, "READY", svc.status)
}

func TestUpdateStatusRequiresStatus(t *testing.T) {
	svc := &fakeService{}
	e := newServer(svc, config.Config{})

	rec, env := do(t, e, http.MethodPatch, "/orders/o-1/status", `{}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(errorbank.KindValidation), env.Error.Kind)
	assert.Empty(t, svc.statusID)
}

func TestDeleteOrder(t *testing.T) {
	svc := &fakeService{}
	e := newServer(svc, config.Config{})

	rec, env := do(t, e, http.MethodDelete, "/orders/o-1", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "o-1", svc.deleted)
}

func TestDateRangeParsesBothLayouts(t *testing.T) {
	svc := &fakeService{}
	e := newServer(svc, config.Config{})

	rec, _ := do(t, e, http.MethodGet,
		"/orders/date-range?startDate=2024-03-01T08:00:00&endDate=2024-03-01T18:00:00%2B02:00", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.start.Equal(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)))
	assert.True(t, svc.end.Equal(time.Date(2024, 3, 1, 16, 0, 0, 0, time.UTC)))
}

func TestDateRangeRejectsBadInput(t *testing.T) {
	e := newServer(&fakeService{}, config.Config{})

	for _, target := range []string{
		"/orders/date-range?endDate=2024-03-01T18:00:00",
		"/orders/date-range?startDate=yesterday&endDate=2024-03-01T18:00:00",
		"/orders/date-range/pageable?startDate=2024-03-01T08:00:00&endDate=2024-03-01T18:00:00&page=x",
	} {
		rec, env := do(t, e, http.MethodGet, target, "", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Equal(t, string(errorbank.KindBadRequest), env.Error.Kind, target)
	}
}

func TestDateRangePage(t *testing.T) {
	svc := &fakeService{}
	e := newServer(svc, config.Config{})

	rec, env := do(t, e, http.MethodGet,
		"/orders/date-range/pageable?startDate=2024-03-01T08:00:00&endDate=2024-03-02T08:00:00&page=2&size=5", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, svc.page)
	assert.Equal(t, 5, svc.size)

	var page dto.Page[dto.OrderResponse]
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Len(t, page.Content, 1)
}

func TestStaffRoutesRequireToken(t *testing.T) {
	cfg := config.Config{Auth: config.Auth{JWTSecret: "s3cret"}}
	svc := &fakeService{}
	e := newServer(svc, cfg)

	rec, env := do(t, e, http.MethodDelete, "/orders/o-1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, string(errorbank.KindUnauthorized), env.Error.Kind)
	assert.Empty(t, svc.deleted)

	rec, _ = do(t, e, http.MethodGet, "/orders/o-1", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "order lookup stays public")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.StaffClaims{
		Role:             middleware.RoleKitchen,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	signed, err := token.SignedString([]byte("s3cret"))
	require.NoError(t, err)

	rec, _ = do(t, e, http.MethodGet, "/orders", "", http.Header{echo.HeaderAuthorization: {"Bearer " + signed}})
	assert.Equal(t, http.StatusOK, rec.Code)
}
