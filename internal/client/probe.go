// Package client содержит HTTP-клиенты зависимостей сервиса заказов:
// проверку доступности, каталог товаров и сервис пользователей.
package client

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultHealthPath путь проверки здоровья зависимостей
const DefaultHealthPath = "/actuator/health"

// DefaultProbeTimeout предел ожидания ответа на проверку
const DefaultProbeTimeout = 2 * time.Second

// Prober рекомендательная проверка доступности зависимости
type Prober interface {
	Probe(ctx context.Context, baseURL string) bool
}

// HTTPProber проверяет зависимость запросом на её health-путь.
// Любая ошибка транспорта, таймаут или не-2xx ответ дают false; ошибка
// наружу не возвращается.
type HTTPProber struct {
	client  *http.Client
	path    string
	timeout time.Duration
	log     *slog.Logger
}

func NewHTTPProber(client *http.Client, path string, timeout time.Duration, log *slog.Logger) *HTTPProber {
	if client == nil {
		client = http.DefaultClient
	}
	if path == "" {
		path = DefaultHealthPath
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if log == nil {
		log = slog.Default()
	}
	return &HTTPProber{client: client, path: path, timeout: timeout, log: log}
}

func (p *HTTPProber) Probe(ctx context.Context, baseURL string) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	url := strings.TrimRight(baseURL, "/") + p.path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		p.log.WarnContext(ctx, "probe request build failed", "url", url, "err", err)
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.WarnContext(ctx, "dependency probe failed", "url", url, "err", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	up := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !up {
		p.log.WarnContext(ctx, "dependency reported unhealthy", "url", url, "status", resp.StatusCode)
	}
	return up
}

// ProberFunc адаптер функции к Prober
type ProberFunc func(ctx context.Context, baseURL string) bool

func (f ProberFunc) Probe(ctx context.Context, baseURL string) bool { return f(ctx, baseURL) }
