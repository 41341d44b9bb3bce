package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"orderflow/internal/auth"
	"orderflow/internal/domain"
)

const apiPrefix = "/api/v1"

// remote общая часть клиентов: проверка доступности, передача токена,
// трассировка и перевод ответов в доменные ошибки.
type remote struct {
	service string
	baseURL string
	http    *http.Client
	prober  Prober
	tracer  trace.Tracer
	log     *slog.Logger
}

func newRemote(service, baseURL string, httpClient *http.Client, prober Prober, log *slog.Logger) remote {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if log == nil {
		log = slog.Default()
	}
	return remote{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		prober:  prober,
		tracer:  otel.Tracer("orderflow/client"),
		log:     log.With("dependency", service),
	}
}

// ensureUp fail-fast без повторов, если проверка не прошла
func (r remote) ensureUp(ctx context.Context, resource string, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.prober.Probe(ctx, r.baseURL) {
		return nil
	}
	r.log.WarnContext(ctx, "dependency down, call skipped", "resource", resource, "id", id)
	return &domain.DependencyError{Service: r.service, Resource: resource, Value: strconv.FormatInt(id, 10)}
}

type response struct {
	status int
	body   []byte
}

func (r remote) do(ctx context.Context, cred auth.Credential, method, path string, payload any) (response, error) {
	ctx, span := r.tracer.Start(ctx, r.service+" "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.method", method), attribute.String("url.path", path)))
	defer span.End()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return response{}, fmt.Errorf("%s: encode request: %w", r.service, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return response{}, fmt.Errorf("%s: build request: %w", r.service, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	cred.Attach(req)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := r.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		// отмена вызывающим не означает недоступность зависимости
		if ctxErr := ctx.Err(); ctxErr != nil {
			return response{}, fmt.Errorf("%s %s: %w", method, path, ctxErr)
		}
		return response{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return response{}, fmt.Errorf("%s: read response: %w", r.service, err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	return response{status: resp.StatusCode, body: raw}, nil
}

// translate переводит не-2xx статус в доменную ошибку
func (r remote) translate(resp response, resource string, id int64) error {
	switch {
	case resp.status >= 200 && resp.status < 300:
		return nil
	case resp.status == http.StatusUnauthorized || resp.status == http.StatusForbidden:
		return &domain.CredentialError{Service: r.service}
	case resp.status == http.StatusNotFound:
		return domain.NotFound(resource, id)
	default:
		return &domain.DependencyError{
			Service:  r.service,
			Resource: strings.ToLower(resource) + "Id",
			Value:    strconv.FormatInt(id, 10),
			Err:      fmt.Errorf("unexpected status %d", resp.status),
		}
	}
}

// transportError оборачивает сетевую ошибку, сохраняя отмену контекста
func (r remote) transportError(err error, resource string, id int64) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &domain.DependencyError{
		Service:  r.service,
		Resource: strings.ToLower(resource) + "Id",
		Value:    strconv.FormatInt(id, 10),
		Err:      err,
	}
}
