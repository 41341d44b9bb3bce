package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"orderflow/internal/auth"
)

// IdentityService имя сервиса пользователей в ошибках и проверке здоровья
const IdentityService = "user-service"

// IdentityClient проверяет существование покупателей
type IdentityClient struct {
	remote
}

func NewIdentityClient(baseURL string, httpClient *http.Client, prober Prober, log *slog.Logger) *IdentityClient {
	return &IdentityClient{remote: newRemote(IdentityService, baseURL, httpClient, prober, log)}
}

// UserExists true для 2xx, false для 404. Отказ в доступе и сбои
// зависимости возвращаются ошибкой, а не false.
func (c *IdentityClient) UserExists(ctx context.Context, cred auth.Credential, id int64) (bool, error) {
	if err := c.ensureUp(ctx, "userId", id); err != nil {
		return false, err
	}
	resp, err := c.do(ctx, cred, http.MethodGet, fmt.Sprintf("%s/users/%d", apiPrefix, id), nil)
	if err != nil {
		return false, c.transportError(err, "User", id)
	}
	if resp.status == http.StatusNotFound {
		return false, nil
	}
	if err := c.translate(resp, "User", id); err != nil {
		return false, err
	}
	return true, nil
}

// Healthy результат проверки доступности сервиса пользователей
func (c *IdentityClient) Healthy(ctx context.Context) bool {
	return c.prober.Probe(ctx, c.baseURL)
}
