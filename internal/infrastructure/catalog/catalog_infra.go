package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/DRSN-tech/vision-service/internal/cfg"
	"github.com/DRSN-tech/vision-service/internal/domain"
	"github.com/DRSN-tech/vision-service/pkg/e"
	"github.com/DRSN-tech/vision-service/pkg/jitter"
	"github.com/DRSN-tech/vision-service/pkg/logger"
	"github.com/shopspring/decimal"
)

const (
	productsPath = "/products"
	maxBodyBytes = 32 << 20

	baseJitter = 500 * time.Millisecond
	maxJitter  = 10 * time.Second
)

// productDTO: товар в ответе коммерческого бэкенда. Цена может прийти числом или строкой.
type productDTO struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	SellerID    int64           `json:"seller_id"`
	Images      []struct {
		ImageURL string `json:"image_url"`
	} `json:"images"`
}

// CatalogInfrastructure читает каталог товаров всех продавцов.
type CatalogInfrastructure struct {
	client  *http.Client
	baseURL *url.URL
	cfg     *cfg.CatalogCfg
	logger  logger.Logger
}

func NewCatalogInfrastructure(cfg *cfg.CatalogCfg, logger logger.Logger) (*CatalogInfrastructure, error) {
	const op = "NewCatalogInfrastructure"

	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, e.Wrap(op, fmt.Errorf("catalog base url must be absolute, got %q", cfg.BaseURL))
	}

	return &CatalogInfrastructure{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: base,
		cfg:     cfg,
		logger:  logger,
	}, nil
}

// FetchProducts запрашивает GET {base}/products. Ошибки сети и ответы не 2xx повторяются,
// после исчерпания попыток возвращается ErrCatalogFetchFailed.
func (c *CatalogInfrastructure) FetchProducts(ctx context.Context) ([]domain.CatalogProduct, error) {
	const op = "CatalogInfrastructure.FetchProducts"

	var dtos []productDTO
	policy := jitter.Policy{
		Attempts: c.cfg.MaxRetries,
		Base:     baseJitter,
		Max:      maxJitter,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			c.logger.Warnf("catalog fetch failed, retrying in %v (attempt %d): %v", wait, attempt, err)
		},
	}

	err := jitter.Retry(ctx, policy, func(ctx context.Context) error {
		var err error
		dtos, err = c.fetch(ctx)
		return err
	})
	if err != nil {
		return nil, e.Wrap(op, fmt.Errorf("%w: %v", e.ErrCatalogFetchFailed, err))
	}

	products := make([]domain.CatalogProduct, 0, len(dtos))
	for _, dto := range dtos {
		products = append(products, c.toDomain(dto))
	}

	c.logger.Infof("fetched %d products from catalog", len(products))
	return products, nil
}

func (c *CatalogInfrastructure) fetch(ctx context.Context) ([]productDTO, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.String()+productsPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var dtos []productDTO
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&dtos); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}
	return dtos, nil
}

func (c *CatalogInfrastructure) toDomain(dto productDTO) domain.CatalogProduct {
	images := make([]domain.CatalogImage, 0, len(dto.Images))
	for _, img := range dto.Images {
		if img.ImageURL == "" {
			continue
		}
		images = append(images, domain.CatalogImage{ImageURL: c.ResolveURL(img.ImageURL)})
	}

	return domain.CatalogProduct{
		ID:          dto.ID,
		Name:        dto.Name,
		Description: dto.Description,
		Price:       dto.Price.Round(2).InexactFloat64(),
		SellerID:    dto.SellerID,
		Images:      images,
	}
}

// ResolveURL делает относительные ссылки на изображения абсолютными относительно базового адреса каталога.
func (c *CatalogInfrastructure) ResolveURL(raw string) string {
	ref, err := url.Parse(raw)
	if err != nil || ref.IsAbs() {
		return raw
	}
	return c.baseURL.ResolveReference(ref).String()
}
