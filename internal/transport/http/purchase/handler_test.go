package purchase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	echo "github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/handoff/internal/auth"
	"github.com/Additional-Code/handoff/internal/dto"
	"github.com/Additional-Code/handoff/internal/entity"
	"github.com/Additional-Code/handoff/internal/presentation/http/response"
	servhttp "github.com/Additional-Code/handoff/internal/server/http"
	service "github.com/Additional-Code/handoff/internal/service/purchase"
)

type fakePurchases struct {
	orders  map[int64]*entity.Order
	created []service.CreateInput
	err     error
}

func (f *fakePurchases) Create(_ context.Context, in service.CreateInput) (*entity.Order, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, in)
	return &entity.Order{
		ID:             1,
		Code:           "ORD-0000ABCD",
		BuyerID:        in.BuyerID,
		ProductID:      in.ProductID,
		Quantity:       in.Quantity,
		UnitPrice:      decimal.RequireFromString("12.5"),
		PurchasePrice:  decimal.RequireFromString("25"),
		DeliveryMethod: in.DeliveryMethod,
		DeliveryFee:    decimal.Zero,
		Status:         entity.StatusAwaitingPickup,
	}, nil
}

func (f *fakePurchases) Get(_ context.Context, id int64) (*entity.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return nil, service.ErrOrderNotFound
	}
	return o, nil
}

func (f *fakePurchases) MarkOutForDelivery(_ context.Context, id, agentID int64) (*entity.Order, error) {
	o, err := f.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	if o.Status != entity.StatusAwaitingDelivery {
		return nil, &service.TransitionError{From: o.Status, To: entity.StatusOutForDelivery}
	}
	o.Status = entity.StatusOutForDelivery
	o.DispatchedBy = &agentID
	return o, nil
}

func (f *fakePurchases) Cancel(_ context.Context, id int64) (*entity.Order, error) {
	o, err := f.Get(context.Background(), id)
	if err != nil {
		return nil, err
	}
	o.Status = entity.StatusCancelled
	return o, nil
}

func session(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		role := auth.Role(c.Request().Header.Get("X-Role"))
		id := int64(7)
		if role == auth.RoleAgent {
			id = 9
		}
		auth.WithPrincipal(c, auth.Principal{UserID: id, Username: "u", Role: role})
		return next(c)
	}
}

func newServer(f *fakePurchases) *echo.Echo {
	e := echo.New()
	e.Validator = servhttp.NewRequestValidator()
	e.HTTPErrorHandler = servhttp.ErrorHandler(zap.NewNop())
	Register(e, New(f), session)
	return e
}

func call(e *echo.Echo, method, path string, role auth.Role, body string) (*httptest.ResponseRecorder, response.Envelope) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-Role", string(role))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env response.Envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestCreate(t *testing.T) {
	f := &fakePurchases{}
	e := newServer(f)

	rec, env := call(e, http.MethodPost, "/purchases", auth.RoleBuyer, `{"product_id":3,"quantity":2,"delivery_method":"pickup"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, env.Success)

	require.Len(t, f.created, 1)
	assert.Equal(t, service.CreateInput{BuyerID: 7, ProductID: 3, Quantity: 2, DeliveryMethod: entity.DeliveryPickup}, f.created[0])

	var out struct {
		Data dto.OrderResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "12.50", out.Data.UnitPrice)
	assert.Equal(t, "25.00", out.Data.PurchasePrice)
	assert.Nil(t, out.Data.SellerAmount)
}

func TestCreate_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		role       auth.Role
		body       string
		svcErr     error
		wantStatus int
		wantCode   string
	}{
		{"delivery_without_address", auth.RoleBuyer, `{"product_id":3,"quantity":1,"delivery_method":"delivery"}`, nil, http.StatusBadRequest, "validation_failed"},
		{"unknown_method", auth.RoleBuyer, `{"product_id":3,"quantity":1,"delivery_method":"drone"}`, nil, http.StatusBadRequest, "validation_failed"},
		{"zero_quantity", auth.RoleBuyer, `{"product_id":3,"quantity":0,"delivery_method":"pickup"}`, nil, http.StatusBadRequest, "validation_failed"},
		{"agent_cannot_buy", auth.RoleAgent, `{"product_id":3,"quantity":1,"delivery_method":"pickup"}`, nil, http.StatusForbidden, "forbidden"},
		{"out_of_stock", auth.RoleBuyer, `{"product_id":3,"quantity":9,"delivery_method":"pickup"}`, service.ErrInsufficientInventory, http.StatusConflict, "insufficient_inventory"},
		{"unknown_product", auth.RoleBuyer, `{"product_id":4,"quantity":1,"delivery_method":"pickup"}`, service.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakePurchases{err: tt.svcErr}
			rec, env := call(newServer(f), http.MethodPost, "/purchases", tt.role, tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
			assert.Empty(t, f.created)
		})
	}
}

func TestGetByID_Visibility(t *testing.T) {
	f := &fakePurchases{orders: map[int64]*entity.Order{
		1: {ID: 1, BuyerID: 7, Status: entity.StatusAwaitingPickup},
		2: {ID: 2, BuyerID: 8, Status: entity.StatusAwaitingPickup},
	}}
	e := newServer(f)

	rec, _ := call(e, http.MethodGet, "/orders/1", auth.RoleBuyer, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := call(e, http.MethodGet, "/orders/2", auth.RoleBuyer, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "order_not_found", env.Error.Code)

	rec, _ = call(e, http.MethodGet, "/orders/2", auth.RoleAgent, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = call(e, http.MethodGet, "/orders/abc", auth.RoleAgent, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_id", env.Error.Code)
}

func TestAgentTransitions(t *testing.T) {
	f := &fakePurchases{orders: map[int64]*entity.Order{
		1: {ID: 1, BuyerID: 7, Status: entity.StatusAwaitingDelivery},
		2: {ID: 2, BuyerID: 7, Status: entity.StatusAwaitingPickup},
	}}
	e := newServer(f)

	rec, _ := call(e, http.MethodPost, "/orders/1/out-for-delivery", auth.RoleAgent, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, entity.StatusOutForDelivery, f.orders[1].Status)
	require.NotNil(t, f.orders[1].DispatchedBy)
	assert.Equal(t, int64(9), *f.orders[1].DispatchedBy)
	assert.Nil(t, f.orders[1].AgentID)

	rec, env := call(e, http.MethodPost, "/orders/2/out-for-delivery", auth.RoleAgent, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "invalid_transition", env.Error.Code)

	rec, _ = call(e, http.MethodPost, "/orders/2/cancel", auth.RoleAgent, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, _ = call(e, http.MethodPost, "/orders/2/cancel", auth.RoleAdmin, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, entity.StatusCancelled, f.orders[2].Status)
}
