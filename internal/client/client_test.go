package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/auth"
	"orderflow/internal/domain"
)

var cred = auth.Credential{Token: "caller-token"}

func alwaysUp() Prober   { return ProberFunc(func(context.Context, string) bool { return true }) }
func alwaysDown() Prober { return ProberFunc(func(context.Context, string) bool { return false }) }

func TestHTTPProber(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultHealthPath, r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer failing.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	p := NewHTTPProber(nil, "", 50*time.Millisecond, nil)
	ctx := context.Background()
	assert.True(t, p.Probe(ctx, healthy.URL))
	assert.True(t, p.Probe(ctx, healthy.URL+"/"))
	assert.False(t, p.Probe(ctx, failing.URL))
	assert.False(t, p.Probe(ctx, slow.URL))
	assert.False(t, p.Probe(ctx, "http://127.0.0.1:1"))
	assert.False(t, p.Probe(ctx, "::not a url"))
}

func TestCatalog_DownDependencyMakesNoRemoteCall(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()

	c := NewCatalogClient(srv.URL, nil, alwaysDown(), nil)
	ctx := context.Background()

	_, err := c.ProductExists(ctx, cred, 5)
	assert.ErrorIs(t, err, domain.ErrDependencyUnavailable)
	_, err = c.FetchProduct(ctx, cred, 5)
	assert.ErrorIs(t, err, domain.ErrDependencyUnavailable)
	_, err = c.AdjustStock(ctx, cred, 5, -1)
	assert.ErrorIs(t, err, domain.ErrDependencyUnavailable)

	var derr *domain.DependencyError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, CatalogService, derr.Service)
	assert.Equal(t, "productId", derr.Resource)
	assert.Equal(t, "5", derr.Value)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestCatalog_FetchForwardsCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer caller-token", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/v1/products/5":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 5, "name": "Widget", "price": "9.99", "stock": 10})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewCatalogClient(srv.URL, srv.Client(), alwaysUp(), nil)
	ctx := context.Background()

	snap, err := c.FetchProduct(ctx, cred, 5)
	require.NoError(t, err)
	assert.Equal(t, "Widget", snap.Name)
	assert.Equal(t, "9.99", snap.Price.StringFixed(2))
	assert.Equal(t, 10, snap.Stock)

	ok, err := c.ProductExists(ctx, cred, 5)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.ProductExists(ctx, cred, 6)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.FetchProduct(ctx, cred, 6)
	assert.ErrorIs(t, err, domain.ErrResourceNotFound)
	assert.EqualError(t, err, "Product not found with id: 6")
}

func TestCatalog_RejectedCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewCatalogClient(srv.URL, srv.Client(), alwaysUp(), nil)
	_, err := c.FetchProduct(context.Background(), cred, 5)
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)

	var cerr *domain.CredentialError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, CatalogService, cerr.Service)
}

func TestCatalog_AdjustStock(t *testing.T) {
	stock := 10
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/api/v1/products/5/stock", r.URL.Path)
		var body struct {
			Quantity int `json:"quantity"`
		}
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&body)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if stock+body.Quantity < 0 {
			w.WriteHeader(http.StatusConflict)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": "insufficient_stock", "available": stock})
			return
		}
		stock += body.Quantity
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 5, "name": "Widget", "price": "9.99", "stock": stock})
	}))
	defer srv.Close()

	c := NewCatalogClient(srv.URL, srv.Client(), alwaysUp(), nil)
	ctx := context.Background()

	snap, err := c.AdjustStock(ctx, cred, 5, -2)
	require.NoError(t, err)
	assert.Equal(t, 8, snap.Stock)

	_, err = c.AdjustStock(ctx, cred, 5, -9)
	require.ErrorIs(t, err, domain.ErrInsufficientStock)
	var serr *domain.StockError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, 8, serr.Available)
	assert.Equal(t, 9, serr.Requested)
	assert.Equal(t, 8, stock)
}

func TestCatalog_AdjustStockConflictWithoutAvailable(t *testing.T) {
	for _, tc := range []struct {
		name      string
		getStatus int
		known     bool
	}{
		{"reread", http.StatusOK, true},
		{"reread fails", http.StatusBadGateway, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodPatch {
					w.WriteHeader(http.StatusConflict)
					return
				}
				w.WriteHeader(tc.getStatus)
				_ = json.NewEncoder(w).Encode(map[string]any{"id": 5, "name": "Widget", "price": "9.99", "stock": 3})
			}))
			defer srv.Close()

			c := NewCatalogClient(srv.URL, srv.Client(), alwaysUp(), nil)
			_, err := c.AdjustStock(context.Background(), cred, 5, -4)
			var serr *domain.StockError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, 4, serr.Requested)
			assert.Equal(t, tc.known, serr.AvailableKnown())
			if tc.known {
				assert.Equal(t, 3, serr.Available)
			} else {
				assert.NotContains(t, serr.Error(), "Stock: 0")
			}
		})
	}
}

func TestCatalog_ServerErrorIsDependencyFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewCatalogClient(srv.URL, srv.Client(), alwaysUp(), nil)
	_, err := c.FetchProduct(context.Background(), cred, 5)
	assert.ErrorIs(t, err, domain.ErrDependencyUnavailable)
}

func TestCatalog_CancelledContext(t *testing.T) {
	c := NewCatalogClient("http://127.0.0.1:1", nil, alwaysUp(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.FetchProduct(ctx, cred, 5)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrDependencyUnavailable)
}

func TestIdentity_UserExists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Header.Get("Authorization") != "Bearer caller-token":
			w.WriteHeader(http.StatusUnauthorized)
		case r.URL.Path == "/api/v1/users/1":
			_ = json.NewEncoder(w).Encode(map[string]any{"id": 1, "email": "buyer@example.com"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewIdentityClient(srv.URL, srv.Client(), alwaysUp(), nil)
	ctx := context.Background()

	ok, err := c.UserExists(ctx, cred, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.UserExists(ctx, cred, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.UserExists(ctx, auth.Credential{Token: "other"}, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)

	down := NewIdentityClient(srv.URL, srv.Client(), alwaysDown(), nil)
	_, err = down.UserExists(ctx, cred, 1)
	var derr *domain.DependencyError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, IdentityService, derr.Service)
	assert.Equal(t, "userId", derr.Resource)
	assert.Equal(t, "1", derr.Value)
}
