package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"stockd/internal/realtime"
	"stockd/internal/service"
	"stockd/internal/store/memory"
	"stockd/internal/txn"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "test-secret"
	tenantA    = "tenant-a"
	tenantB    = "tenant-b"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeRedis is an in-memory RedisStore
type fakeRedis struct {
	mu          sync.Mutex
	values      map[string][]byte
	blacklist   map[string]bool
	idempotency map[string]string
	hits        int
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		values:      make(map[string][]byte),
		blacklist:   make(map[string]bool),
		idempotency: make(map[string]string),
	}
}

func (f *fakeRedis) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.values[key]
	if !ok {
		return false, nil
	}
	f.hits++
	return true, json.Unmarshal(data, dest)
}

func (f *fakeRedis) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = data
	return nil
}

func (f *fakeRedis) InvalidateTenant(ctx context.Context, tenantID string, resources ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, resource := range resources {
		prefix := "cache:" + tenantID + ":" + resource + ":"
		for key := range f.values {
			if strings.HasPrefix(key, prefix) {
				delete(f.values, key)
			}
		}
	}
	return nil
}

func (f *fakeRedis) BlacklistToken(ctx context.Context, token string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blacklist[token] = true
	return nil
}

func (f *fakeRedis) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blacklist[token], nil
}

func (f *fakeRedis) ClaimIdempotencyKey(ctx context.Context, tenantID, key string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := tenantID + ":" + key
	if _, ok := f.idempotency[k]; ok {
		return false, nil
	}
	f.idempotency[k] = ""
	return true, nil
}

func (f *fakeRedis) CompleteIdempotencyKey(ctx context.Context, tenantID, key, resourceID string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idempotency[tenantID+":"+key] = resourceID
	return nil
}

func (f *fakeRedis) ReleaseIdempotencyKey(ctx context.Context, tenantID, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.idempotency, tenantID+":"+key)
	return nil
}

func (f *fakeRedis) IdempotencyResult(ctx context.Context, tenantID, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.idempotency[tenantID+":"+key]
	return id, id != "", nil
}

func (f *fakeRedis) cacheHits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits
}

type testServer struct {
	router  *gin.Engine
	handler *Handler
	hub     *realtime.Hub
	redis   *fakeRedis
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mem := memory.New()
	coordinator, err := txn.NewCoordinator(context.Background(), mem, txn.Config{MaxRetries: 3, BackoffUnit: time.Millisecond})
	require.NoError(t, err)

	hub := realtime.NewHub(realtime.DefaultBuffer)
	movements := service.NewMovementRecorder(mem.Repositories())
	handler := NewHandler(Services{
		Products:       service.NewProductService(coordinator, mem.Repositories(), movements, hub),
		Orders:         service.NewOrderService(coordinator, mem.Repositories(), movements, hub),
		PurchaseOrders: service.NewPurchaseOrderService(coordinator, mem.Repositories(), movements, hub),
		Movements:      movements,
		Suppliers:      service.NewSupplierService(mem.Repositories()),
		Dashboard:      service.NewDashboardService(mem.Repositories()),
		Hub:            hub,
	}, testSecret)

	redis := newFakeRedis()
	handler.WithRedis(redis, time.Minute)

	router := gin.New()
	handler.SetupRoutes(router)

	return &testServer{router: router, handler: handler, hub: hub, redis: redis}
}

func token(t *testing.T, tenantID, role string) string {
	t.Helper()
	claims := Claims{
		UserID:   "user-" + role,
		TenantID: tenantID,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Meta    struct {
		Page  int `json:"page"`
		Limit int `json:"limit"`
		Total int `json:"total"`
	} `json:"meta"`
}

func (s *testServer) do(t *testing.T, method, path, bearer string, body interface{}, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func decode(t *testing.T, raw json.RawMessage, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, dest))
}

type productResponse struct {
	ID       string `json:"id"`
	Variants []struct {
		SKU   string `json:"sku"`
		Stock int    `json:"stock"`
	} `json:"variants"`
}

type orderResponse struct {
	ID          string `json:"id"`
	OrderNumber string `json:"order_number"`
	Status      string `json:"status"`
}

// createProduct seeds a product with one variant through the API
func (s *testServer) createProduct(t *testing.T, tenantID, sku string, stock int) productResponse {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "/api/v1/products", token(t, tenantID, RoleOwner), gin.H{
		"name":                "Mug",
		"low_stock_threshold": 1,
		"variants": []gin.H{
			{"sku": sku, "price": "4.50", "stock": stock, "attributes": gin.H{"color": "red"}},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var product productResponse
	decode(t, env.Data, &product)
	return product
}

func orderBody(productID, sku string, quantity int) gin.H {
	return gin.H{
		"customer_name": "Ada",
		"items": []gin.H{
			{"product_id": productID, "variant_sku": sku, "quantity": quantity},
		},
	}
}

// createSupplier seeds a supplier through the API and returns its id
func (s *testServer) createSupplier(t *testing.T, tenantID string) string {
	t.Helper()
	w, env := s.do(t, http.MethodPost, "/api/v1/suppliers", token(t, tenantID, RoleManager), gin.H{
		"name":  "Acme Ceramics",
		"email": "sales@acme.test",
		"phone": "+1 555 0199",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var supplier struct {
		ID string `json:"id"`
	}
	decode(t, env.Data, &supplier)
	return supplier.ID
}
