package client

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"orderflow/internal/auth"
	"orderflow/internal/domain"
)

// CatalogService имя сервиса каталога в ошибках и проверке здоровья
const CatalogService = "product-service"

// CatalogClient обращается к каталогу товаров от имени вызывающего
type CatalogClient struct {
	remote
}

func NewCatalogClient(baseURL string, httpClient *http.Client, prober Prober, log *slog.Logger) *CatalogClient {
	return &CatalogClient{remote: newRemote(CatalogService, baseURL, httpClient, prober, log)}
}

type productPayload struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

func (p productPayload) snapshot() domain.ProductSnapshot {
	return domain.ProductSnapshot{ID: p.ID, Name: p.Name, Price: p.Price, Stock: p.Stock}
}

type stockPatch struct {
	Quantity int `json:"quantity"`
}

type conflictPayload struct {
	Available *int `json:"available"`
}

func productPath(id int64) string {
	return fmt.Sprintf("%s/products/%d", apiPrefix, id)
}

// ProductExists лёгкая проверка существования товара
func (c *CatalogClient) ProductExists(ctx context.Context, cred auth.Credential, id int64) (bool, error) {
	if err := c.ensureUp(ctx, "productId", id); err != nil {
		return false, err
	}
	_, found, err := c.get(ctx, cred, id)
	return found, err
}

// FetchProduct читает актуальный снимок товара
func (c *CatalogClient) FetchProduct(ctx context.Context, cred auth.Credential, id int64) (domain.ProductSnapshot, error) {
	if err := c.ensureUp(ctx, "productId", id); err != nil {
		return domain.ProductSnapshot{}, err
	}
	snap, found, err := c.get(ctx, cred, id)
	if err != nil {
		return domain.ProductSnapshot{}, err
	}
	if !found {
		return domain.ProductSnapshot{}, domain.NotFound("Product", id)
	}
	return snap, nil
}

// AdjustStock меняет остаток на delta (отрицательная резервирует) и
// возвращает обновлённый снимок. Каталог сам отклоняет уход в минус.
func (c *CatalogClient) AdjustStock(ctx context.Context, cred auth.Credential, id int64, delta int) (domain.ProductSnapshot, error) {
	if err := c.ensureUp(ctx, "productId", id); err != nil {
		return domain.ProductSnapshot{}, err
	}
	resp, err := c.do(ctx, cred, http.MethodPatch, productPath(id)+"/stock", stockPatch{Quantity: delta})
	if err != nil {
		return domain.ProductSnapshot{}, c.transportError(err, "Product", id)
	}
	if resp.status == http.StatusConflict {
		var conflict conflictPayload
		_ = json.Unmarshal(resp.body, &conflict)
		serr := &domain.StockError{ProductID: id, Requested: -delta, Available: domain.AvailableUnknown}
		if conflict.Available != nil {
			serr.Available = *conflict.Available
		} else if snap, found, err := c.get(ctx, cred, id); err == nil && found {
			// в ответе нет остатка, берём его из свежего снимка
			serr.Available = snap.Stock
		}
		return domain.ProductSnapshot{}, serr
	}
	if err := c.translate(resp, "Product", id); err != nil {
		return domain.ProductSnapshot{}, err
	}
	var p productPayload
	if err := json.Unmarshal(resp.body, &p); err != nil {
		return domain.ProductSnapshot{}, c.transportError(fmt.Errorf("decode product: %w", err), "Product", id)
	}
	c.log.InfoContext(ctx, "stock adjusted", "productId", id, "delta", delta, "stock", p.Stock)
	return p.snapshot(), nil
}

func (c *CatalogClient) get(ctx context.Context, cred auth.Credential, id int64) (domain.ProductSnapshot, bool, error) {
	resp, err := c.do(ctx, cred, http.MethodGet, productPath(id), nil)
	if err != nil {
		return domain.ProductSnapshot{}, false, c.transportError(err, "Product", id)
	}
	if resp.status == http.StatusNotFound {
		return domain.ProductSnapshot{}, false, nil
	}
	if err := c.translate(resp, "Product", id); err != nil {
		return domain.ProductSnapshot{}, false, err
	}
	var p productPayload
	if err := json.Unmarshal(resp.body, &p); err != nil {
		return domain.ProductSnapshot{}, false, c.transportError(fmt.Errorf("decode product: %w", err), "Product", id)
	}
	return p.snapshot(), true, nil
}

// Healthy результат проверки доступности каталога
func (c *CatalogClient) Healthy(ctx context.Context) bool {
	return c.prober.Probe(ctx, c.baseURL)
}
