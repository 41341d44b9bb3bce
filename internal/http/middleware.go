package httpapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"orderflow/internal/auth"
	"orderflow/internal/telemetry"
)

const (
	ctxCredential = "credential"
	ctxIdentity   = "identity"

	headerIdempotencyKey = "Idempotency-Key"
)

var registerTagName sync.Once

// useJSONFieldNames ошибки валидации называют поля так же, как JSON
func useJSONFieldNames() {
	registerTagName.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
}

func newEngine(log *slog.Logger, service string) *gin.Engine {
	useJSONFieldNames()
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), tracing(service), requestLogger(log))
	return r
}

// requestID берёт X-Request-Id клиента или выдаёт новый
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(telemetry.HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(telemetry.HeaderRequestID, id)
		c.Request = c.Request.WithContext(telemetry.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func tracing(service string) gin.HandlerFunc {
	tracer := otel.Tracer("orderflow/http")
	return func(c *gin.Context) {
		ctx := otel.GetTextMapPropagator().Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("service", service),
				attribute.String("http.method", c.Request.Method),
				attribute.String("http.route", route),
			))
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}
	}
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.InfoContext(c.Request.Context(), "http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
		)
	}
}

// authenticate извлекает bearer-токен и, если задан verifier, проверяет
// его. Токен кладётся в контекст gin для явной передачи в сервисы.
func authenticate(verifier *auth.Verifier, required bool, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		cred, err := auth.FromRequest(c.Request)
		if err != nil {
			if required {
				writeError(c, log, err)
				return
			}
			c.Next()
			return
		}
		c.Set(ctxCredential, cred)
		if verifier != nil {
			id, err := verifier.Verify(cred)
			if err != nil {
				writeError(c, log, err)
				return
			}
			log.DebugContext(c.Request.Context(), "caller verified", "userId", id.UserID, "roles", id.Roles)
			c.Set(ctxIdentity, id)
		}
		c.Next()
	}
}

func credentialFrom(c *gin.Context) auth.Credential {
	if v, ok := c.Get(ctxCredential); ok {
		if cred, ok := v.(auth.Credential); ok {
			return cred
		}
	}
	return auth.Credential{}
}

func identityFrom(c *gin.Context) (auth.Identity, bool) {
	if v, ok := c.Get(ctxIdentity); ok {
		id, ok := v.(auth.Identity)
		return id, ok
	}
	return auth.Identity{}, false
}

// Claimer занимает ключ идемпотентности
type Claimer interface {
	Claim(ctx context.Context, scope, key, owner string) (bool, error)
}

// callerScope отделяет ключи разных вызывающих: id из проверенного токена,
// без verifier отпечаток самого токена
func callerScope(c *gin.Context) string {
	if id, ok := identityFrom(c); ok && id.UserID > 0 {
		return "user:" + strconv.FormatInt(id.UserID, 10)
	}
	cred := credentialFrom(c)
	if cred.Empty() {
		return "anonymous"
	}
	sum := sha256.Sum256([]byte(cred.Token))
	return "token:" + hex.EncodeToString(sum[:16])
}

// idempotent отклоняет повтор запроса того же вызывающего с тем же
// Idempotency-Key. Если хранилище недоступно, запрос не выполняется.
func idempotent(store Claimer, scope string, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(headerIdempotencyKey))
		if store == nil || key == "" {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		ok, err := store.Claim(ctx, scope, callerScope(c)+":"+key, telemetry.RequestID(ctx))
		if err != nil {
			log.WarnContext(ctx, "idempotency store unavailable", "err", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, errorBody{
				Error: "dependency_unavailable", Message: "idempotency store unavailable",
			})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusConflict, errorBody{
				Error: "duplicate_request", Message: "request with this Idempotency-Key was already accepted",
			})
			return
		}
		c.Next()
	}
}
