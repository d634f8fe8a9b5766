// Package jitter предоставляет backoff с джиттером и простой цикл повторов поверх него,
// чтобы повторные запросы к ML-сервису и к хостам картинок не шли синхронной волной.
package jitter

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// DefaultJitter: стандартный коэффициент джиттера (50%)
const DefaultJitter = 0.5

var (
	globalRand = rand.New(rand.NewSource(time.Now().UnixNano()))
	randMutex  sync.Mutex
)

// Duration возвращает продолжительность с применённым джиттером в диапазоне [d, d*(1+jitterFactor)].
func Duration(d time.Duration, jitterFactor float64) time.Duration {
	randMutex.Lock()
	j := globalRand.Float64() * jitterFactor * float64(d)
	randMutex.Unlock()
	return d + time.Duration(j)
}

// ExponentialBackoff вычисляет экспоненциальную задержку с джиттером.
// attempt нумеруется с нуля; задержка ограничена max до применения джиттера.
func ExponentialBackoff(base, max time.Duration, attempt int, jitterFactor float64) time.Duration {
	backoff := base
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff > max {
			backoff = max
			break
		}
	}
	return Duration(backoff, jitterFactor)
}

// Policy описывает параметры повторов.
type Policy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
	// Retryable решает, имеет ли смысл повторять после ошибки. nil: повторять всегда.
	Retryable func(err error) bool
	// OnRetry вызывается перед ожиданием очередной попытки.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Retry выполняет fn до policy.Attempts раз, ожидая между попытками ExponentialBackoff.
// Возвращает последнюю ошибку fn или ошибку контекста.
func Retry(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	attempts := policy.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}

		if attempt == attempts-1 {
			break
		}
		if policy.Retryable != nil && !policy.Retryable(err) {
			return err
		}

		wait := ExponentialBackoff(policy.Base, policy.Max, attempt, DefaultJitter)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, wait, err)
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return err
}
