package agentconfig

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportdesk_back/apperr"
	"supportdesk_back/authorization"
	"supportdesk_back/database"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	db, err := database.OpenMemory(t.Name())
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return NewGormStore(db)
}

func TestStorePutAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "tenant-a")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	cfg := &Config{TenantID: "tenant-a", CompanyName: "Fietsenwinkel", Tone: "formal", AllowDiscount: true, MaxDiscountAmount: 15}
	require.NoError(t, store.Put(ctx, cfg))

	loaded, err := store.Get(ctx, "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, "Fietsenwinkel", loaded.CompanyName)
	assert.Empty(t, loaded.Signature, "a blank signature is kept blank")
	assert.Equal(t, DefaultLanguage, loaded.DefaultLanguage)
	assert.Equal(t, SchemaVersion, loaded.SchemaVersion)

	cfg.AllowDiscount = false
	cfg.Signature = "Team Fiets"
	require.NoError(t, store.Put(ctx, cfg))
	loaded, err = store.Get(ctx, "tenant-a")
	require.NoError(t, err)
	assert.False(t, loaded.AllowDiscount)
	assert.Zero(t, loaded.MaxDiscountAmount)
	assert.Equal(t, "Team Fiets", loaded.Signature)
}

func TestStoreRejectsInvalidConfig(t *testing.T) {
	store := newTestStore(t)
	err := store.Put(context.Background(), &Config{TenantID: "tenant-a", Tone: "sarcastic"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	err = store.Put(context.Background(), &Config{TenantID: "tenant-a", DefaultLanguage: "de"})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	err = store.Put(context.Background(), &Config{TenantID: "tenant-a", AllowDiscount: true, MaxDiscountAmount: -1})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

type countingStore struct {
	Store
	gets atomic.Int32
	gate chan struct{}
}

func (s *countingStore) Get(ctx context.Context, tenantID string) (*Config, error) {
	s.gets.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	return s.Store.Get(ctx, tenantID)
}

func TestCachedStoreCoalescesLoads(t *testing.T) {
	inner := newTestStore(t)
	require.NoError(t, inner.Put(context.Background(), &Config{TenantID: "tenant-a"}))

	counting := &countingStore{Store: inner, gate: make(chan struct{})}
	cached := NewCachedStore(counting, nil)

	var wg sync.WaitGroup
	results := make([]*Config, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cfg, err := cached.Get(context.Background(), "tenant-a")
			assert.NoError(t, err)
			results[i] = cfg
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(counting.gate)
	wg.Wait()

	assert.Equal(t, int32(1), counting.gets.Load())
	for _, cfg := range results {
		require.NotNil(t, cfg)
		assert.Equal(t, "tenant-a", cfg.TenantID)
	}
	results[0].Signature = "mutated"
	assert.NotEqual(t, "mutated", results[1].Signature)
}

func TestCachedStoreCancelledCallerLeavesLoadRunning(t *testing.T) {
	inner := newTestStore(t)
	require.NoError(t, inner.Put(context.Background(), &Config{TenantID: "tenant-a", CompanyName: "Acme"}))

	counting := &countingStore{Store: inner, gate: make(chan struct{})}
	cached := NewCachedStore(counting, nil)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := cached.Get(ctx, "tenant-a")
		first <- err
	}()
	time.Sleep(20 * time.Millisecond)

	type result struct {
		cfg *Config
		err error
	}
	second := make(chan result, 1)
	go func() {
		cfg, err := cached.Get(context.Background(), "tenant-a")
		second <- result{cfg, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(counting.gate)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "Acme", got.cfg.CompanyName)
	assert.Equal(t, int32(1), counting.gets.Load())
}

func TestCachedStorePutStartsFreshLoad(t *testing.T) {
	inner := newTestStore(t)
	require.NoError(t, inner.Put(context.Background(), &Config{TenantID: "tenant-a", CompanyName: "Old"}))

	counting := &countingStore{Store: inner, gate: make(chan struct{})}
	cached := NewCachedStore(counting, nil)
	before := cached.generation("tenant-a")

	stale := make(chan error, 1)
	go func() {
		_, err := cached.Get(context.Background(), "tenant-a")
		stale <- err
	}()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, cached.Put(context.Background(), &Config{TenantID: "tenant-a", CompanyName: "New"}))
	assert.NotEqual(t, before, cached.generation("tenant-a"))

	fresh := make(chan *Config, 1)
	go func() {
		cfg, err := cached.Get(context.Background(), "tenant-a")
		assert.NoError(t, err)
		fresh <- cfg
	}()
	time.Sleep(20 * time.Millisecond)
	close(counting.gate)

	require.NoError(t, <-stale)
	cfg := <-fresh
	require.NotNil(t, cfg)
	assert.Equal(t, "New", cfg.CompanyName)
	assert.Equal(t, int32(2), counting.gets.Load(), "a read after a write does not join the older load")
}

func TestCachedStorePassesErrorsThrough(t *testing.T) {
	cached := NewCachedStore(newTestStore(t), nil)
	_, err := cached.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, cached.Put(context.Background(), &Config{TenantID: "x", Tone: "bad"}), apperr.ErrValidation)
}

func TestDecodeLegacyFlatJSON(t *testing.T) {
	cfg, err := DecodeLegacy([]byte(`{"companyName":"Acme","tone":"direct","empathyEnabled":true,"allowDiscount":true,"maxDiscountAmount":10,"signature":"Team Acme"}`), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, "tenant-a", cfg.TenantID)
	assert.Equal(t, "Acme", cfg.CompanyName)
	assert.Equal(t, ToneDirect, cfg.Tone)
	assert.True(t, cfg.EmpathyEnabled)
	assert.True(t, cfg.AllowDiscount)
	assert.Equal(t, 10.0, cfg.MaxDiscountAmount)
	assert.Equal(t, "Team Acme", cfg.Signature)
	assert.Equal(t, DefaultLanguage, cfg.DefaultLanguage)
}

func TestDecodeLegacyNestedRules(t *testing.T) {
	cfg, err := DecodeLegacy([]byte(`{"tenant_id":"tenant-b","company_name":"Bakker","allowDiscount":true,"rules":{"allow_discount":false,"empathy_enabled":"true","max_discount_amount":"25"}}`), "")
	require.NoError(t, err)
	assert.Equal(t, "tenant-b", cfg.TenantID)
	assert.Equal(t, "Bakker", cfg.CompanyName)
	assert.False(t, cfg.AllowDiscount, "rules override top-level keys")
	assert.True(t, cfg.EmpathyEnabled)
	assert.Zero(t, cfg.MaxDiscountAmount, "amount is meaningless without discounts")
}

func TestDecodeLegacyYAML(t *testing.T) {
	cfg, err := DecodeLegacy([]byte("companyName: Acme\ndefaultLanguage: en\nrules:\n  allowDiscount: true\n  maxDiscountAmount: 5.5\n"), "tenant-c")
	require.NoError(t, err)
	assert.Equal(t, "en", cfg.DefaultLanguage)
	assert.True(t, cfg.AllowDiscount)
	assert.Equal(t, 5.5, cfg.MaxDiscountAmount)
	assert.Equal(t, DefaultSignature, cfg.Signature)
}

func TestDecodeLegacyRejectsBadInput(t *testing.T) {
	_, err := DecodeLegacy([]byte(`{"tone":"sarcastic"}`), "tenant-a")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = DecodeLegacy([]byte(`{"allowDiscount":"maybe"}`), "tenant-a")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	_, err = DecodeLegacy([]byte(`{"companyName":"x"}`), "")
	assert.ErrorIs(t, err, apperr.ErrValidation, "tenant id is required")
}

func newHandlerRouter(t *testing.T, session authorization.Session) (*gin.Engine, Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := newTestStore(t)
	h := NewHandler(store)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		authorization.SetSession(c, session)
		c.Next()
	})
	router.GET("/agent-config", h.get)
	router.PUT("/agent-config", h.put)
	return router, store
}

func send(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandlerClientRoundTrip(t *testing.T) {
	router, _ := newHandlerRouter(t, authorization.Session{UserID: 2, Role: authorization.RoleClient, TenantID: "tenant-a"})

	rec := send(router, http.MethodGet, "/agent-config", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = send(router, http.MethodPut, "/agent-config", `{"schemaVersion":1,"companyName":"Acme","allowDiscount":true,"maxDiscountAmount":20}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = send(router, http.MethodGet, "/agent-config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Config Config `json:"config"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "tenant-a", resp.Config.TenantID)
	assert.Equal(t, "Acme", resp.Config.CompanyName)
	assert.Equal(t, 20.0, resp.Config.MaxDiscountAmount)
	assert.Equal(t, DefaultSignature, resp.Config.Signature)

	rec = send(router, http.MethodGet, "/agent-config?tenantId=tenant-b", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandlerRejectsUnknownFields(t *testing.T) {
	router, _ := newHandlerRouter(t, authorization.Session{UserID: 2, Role: authorization.RoleClient, TenantID: "tenant-a"})

	rec := send(router, http.MethodPut, "/agent-config", `{"rules":{"allowDiscount":true}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(router, http.MethodPut, "/agent-config", `{"schemaVersion":2}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(router, http.MethodPut, "/agent-config", `{"tone":"sarcastic"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerAdminNeedsTenant(t *testing.T) {
	router, store := newHandlerRouter(t, authorization.Session{UserID: 1, Role: authorization.RoleAdmin})

	rec := send(router, http.MethodGet, "/agent-config", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(router, http.MethodPut, "/agent-config?tenantId=tenant-z", `{"tone":"formal"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	cfg, err := store.Get(context.Background(), "tenant-z")
	require.NoError(t, err)
	assert.Equal(t, ToneFormal, cfg.Tone)
}
