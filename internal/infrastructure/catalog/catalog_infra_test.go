package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DRSN-tech/vision-service/internal/cfg"
	"github.com/DRSN-tech/vision-service/pkg/e"
	"github.com/DRSN-tech/vision-service/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productsJSON = `[
	{"id": 7, "name": "Red Mug", "description": "ceramic", "price": 12.499, "seller_id": 1,
	 "images": [{"image_url": "/uploads/7_a.jpg"}, {"image_url": "https://cdn.example.com/7_b.jpg"}, {"image_url": ""}]},
	{"id": 8, "name": "Blue Plate", "price": "3.10", "seller_id": 2, "images": []}
]`

func newCatalog(t *testing.T, url string, retries int) *CatalogInfrastructure {
	t.Helper()
	c, err := NewCatalogInfrastructure(&cfg.CatalogCfg{BaseURL: url, Timeout: 2 * time.Second, MaxRetries: retries}, logger.NewNop())
	require.NoError(t, err)
	return c
}

func TestCatalog_FetchProducts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(productsJSON))
	}))
	defer srv.Close()

	products, err := newCatalog(t, srv.URL+"/", 1).FetchProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)

	mug := products[0]
	assert.Equal(t, int64(7), mug.ID)
	assert.Equal(t, "Red Mug", mug.Name)
	assert.InDelta(t, 12.5, mug.Price, 1e-9)
	assert.Equal(t, int64(1), mug.SellerID)
	require.Len(t, mug.Images, 2)
	assert.Equal(t, srv.URL+"/uploads/7_a.jpg", mug.Images[0].ImageURL)
	assert.Equal(t, "https://cdn.example.com/7_b.jpg", mug.Images[1].ImageURL)

	assert.InDelta(t, 3.1, products[1].Price, 1e-9)
	assert.Empty(t, products[1].Images)
}

func TestCatalog_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	products, err := newCatalog(t, srv.URL, 3).FetchProducts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, products)
	assert.Equal(t, int32(2), calls.Load())
}

func TestCatalog_FetchFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := newCatalog(t, srv.URL, 1).FetchProducts(context.Background())
	require.ErrorIs(t, err, e.ErrCatalogFetchFailed)
}

func TestCatalog_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"not": "a list"}`))
	}))
	defer srv.Close()

	_, err := newCatalog(t, srv.URL, 1).FetchProducts(context.Background())
	require.ErrorIs(t, err, e.ErrCatalogFetchFailed)
}

func TestNewCatalogInfrastructure_RelativeBase(t *testing.T) {
	_, err := NewCatalogInfrastructure(&cfg.CatalogCfg{BaseURL: "localhost:8080"}, logger.NewNop())
	assert.Error(t, err)
}
