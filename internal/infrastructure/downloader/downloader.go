package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/DRSN-tech/vision-service/internal/cfg"
	"github.com/DRSN-tech/vision-service/pkg/e"
	"github.com/DRSN-tech/vision-service/pkg/jitter"
	"github.com/DRSN-tech/vision-service/pkg/logger"
	"golang.org/x/time/rate"
)

const (
	baseJitter = 300 * time.Millisecond
	maxJitter  = 5 * time.Second
)

// statusError: ответ хоста картинок с кодом не 2xx.
type statusError struct {
	code int
}

func (s *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d", s.code)
}

// ImageDownloader скачивает изображения каталога с ограничением частоты запросов.
type ImageDownloader struct {
	client  *http.Client
	limiter *rate.Limiter
	cfg     *cfg.OrganizerCfg
	logger  logger.Logger
}

func NewImageDownloader(cfg *cfg.OrganizerCfg, logger logger.Logger) *ImageDownloader {
	limit := rate.Inf
	if cfg.DownloadRPS > 0 {
		limit = rate.Limit(cfg.DownloadRPS)
	}
	burst := max(cfg.DownloadConcurrency, 1)

	return &ImageDownloader{
		client:  &http.Client{Timeout: cfg.DownloadTimeout},
		limiter: rate.NewLimiter(limit, burst),
		cfg:     cfg,
		logger:  logger,
	}
}

// Download возвращает тело ответа. Тела больше MaxImageBytes отклоняются с ErrFileTooLarge;
// ошибки сети и 5xx/429 повторяются.
func (d *ImageDownloader) Download(ctx context.Context, url string) ([]byte, error) {
	const op = "ImageDownloader.Download"

	var data []byte
	policy := jitter.Policy{
		Attempts:  d.cfg.DownloadRetries,
		Base:      baseJitter,
		Max:       maxJitter,
		Retryable: isRetryable,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			d.logger.Debugf("download %s failed, retrying in %v (attempt %d): %v", url, wait, attempt, err)
		},
	}

	err := jitter.Retry(ctx, policy, func(ctx context.Context) error {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}

		var err error
		data, err = d.get(ctx, url)
		return err
	})
	if err != nil {
		return nil, e.Wrap(op, err)
	}
	return data, nil
}

func (d *ImageDownloader) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{code: resp.StatusCode}
	}

	limit := d.cfg.MaxImageBytes
	if limit <= 0 {
		return io.ReadAll(resp.Body)
	}
	if resp.ContentLength > limit {
		return nil, e.ErrFileTooLarge
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, e.ErrFileTooLarge
	}
	return data, nil
}

func isRetryable(err error) bool {
	if errors.Is(err, e.ErrFileTooLarge) || errors.Is(err, context.Canceled) {
		return false
	}

	var se *statusError
	if errors.As(err, &se) {
		return se.code >= 500 || se.code == http.StatusTooManyRequests
	}
	return true
}
