package httpapi

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"orderflow/internal/auth"
	"orderflow/internal/domain"
	"orderflow/internal/repository"
	"orderflow/internal/service"
)

// CatalogServer HTTP API каталога товаров. С verifier токен обязателен,
// без него принимается любой bearer.
type CatalogServer struct {
	engine   *gin.Engine
	products *service.ProductService
	verifier *auth.Verifier
	log      *slog.Logger
}

func NewCatalogServer(products *service.ProductService, verifier *auth.Verifier, log *slog.Logger) *CatalogServer {
	if log == nil {
		log = slog.Default()
	}
	s := &CatalogServer{products: products, verifier: verifier, log: log}
	s.engine = newEngine(log, "catalog-service")
	s.registerRoutes()
	return s
}

func (s *CatalogServer) Engine() *gin.Engine { return s.engine }

func (s *CatalogServer) registerRoutes() {
	s.engine.GET("/health", liveness)
	registerDocs(s.engine, "catalog")
	s.engine.GET("/actuator/health", s.health)

	products := s.engine.Group("/api/v1/products", authenticate(s.verifier, s.verifier != nil, s.log))
	{
		products.POST("", s.createProduct)
		products.GET("", s.listProducts)
		products.GET("/search", s.searchProducts)
		products.GET("/available", s.availableProducts)
		products.GET("/category/:category", s.productsByCategory)
		products.GET("/:id", s.getProduct)
		products.PUT("/:id", s.updateProduct)
		products.DELETE("/:id", s.deleteProduct)
		products.PATCH("/:id/stock", s.adjustStock)
	}
}

// @Summary Catalog health
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Router /actuator/health [get]
func (s *CatalogServer) health(c *gin.Context) {
	low, err := s.products.LowStock(c.Request.Context())
	if err != nil {
		s.log.WarnContext(c.Request.Context(), "low stock count failed", "err", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "UP",
		"details": gin.H{
			"lowStockProducts": low,
			"lowStockBelow":    service.LowStockThreshold,
		},
	})
}

type productReq struct {
	Name        string          `json:"name" binding:"required,max=100"`
	Description string          `json:"description" binding:"max=1000"`
	Price       decimal.Decimal `json:"price"`
	Stock       *int            `json:"stock" binding:"required"`
	Category    string          `json:"category"`
	ImageURL    string          `json:"imageUrl" binding:"omitempty,url"`
	Active      *bool           `json:"active"`
}

func (r productReq) toDomain(id int64) domain.Product {
	active := true
	if r.Active != nil {
		active = *r.Active
	}
	return domain.Product{
		ID:          id,
		Name:        r.Name,
		Description: r.Description,
		Price:       r.Price,
		Stock:       *r.Stock,
		Category:    domain.Category(r.Category),
		ImageURL:    r.ImageURL,
		Active:      active,
	}
}

// @Summary Create product
// @Tags products
// @Accept json
// @Produce json
// @Param input body productReq true "Product"
// @Success 201 {object} domain.Product
// @Failure 400 {object} errorBody
// @Router /products [post]
func (s *CatalogServer) createProduct(c *gin.Context) {
	var req productReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	p, err := s.products.Create(c.Request.Context(), req.toDomain(0))
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// @Summary Get product by id
// @Tags products
// @Produce json
// @Param id path int true "Product ID"
// @Success 200 {object} domain.Product
// @Failure 400 {object} errorBody
// @Failure 404 {object} errorBody
// @Router /products/{id} [get]
func (s *CatalogServer) getProduct(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid id")
		return
	}
	p, err := s.products.GetByID(c.Request.Context(), id)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Update product
// @Tags products
// @Accept json
// @Produce json
// @Param id path int true "Product ID"
// @Param input body productReq true "Product"
// @Success 200 {object} domain.Product
// @Failure 400 {object} errorBody
// @Failure 404 {object} errorBody
// @Router /products/{id} [put]
func (s *CatalogServer) updateProduct(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid id")
		return
	}
	var req productReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	p, err := s.products.Update(c.Request.Context(), req.toDomain(id))
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary Delete product
// @Tags products
// @Param id path int true "Product ID"
// @Success 204
// @Failure 400 {object} errorBody
// @Failure 404 {object} errorBody
// @Router /products/{id} [delete]
func (s *CatalogServer) deleteProduct(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid id")
		return
	}
	if err := s.products.Delete(c.Request.Context(), id); err != nil {
		writeError(c, s.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// @Summary List products
// @Tags products
// @Produce json
// @Param q query string false "Name substring"
// @Success 200 {array} domain.Product
// @Router /products [get]
func (s *CatalogServer) listProducts(c *gin.Context) {
	s.list(c, repository.ProductFilter{NameSubstring: c.Query("q")})
}

// @Summary Search products by name
// @Tags products
// @Produce json
// @Param name query string true "Name substring"
// @Success 200 {array} domain.Product
// @Router /products/search [get]
func (s *CatalogServer) searchProducts(c *gin.Context) {
	name := strings.TrimSpace(c.Query("name"))
	if name == "" {
		badRequest(c, "name is required")
		return
	}
	s.list(c, repository.ProductFilter{NameSubstring: name})
}

// @Summary Products in stock
// @Tags products
// @Produce json
// @Success 200 {array} domain.Product
// @Router /products/available [get]
func (s *CatalogServer) availableProducts(c *gin.Context) {
	s.list(c, repository.ProductFilter{AvailableOnly: true})
}

// @Summary Products of a category
// @Tags products
// @Produce json
// @Param category path string true "Category"
// @Success 200 {array} domain.Product
// @Router /products/category/{category} [get]
func (s *CatalogServer) productsByCategory(c *gin.Context) {
	category := domain.Category(strings.ToUpper(c.Param("category")))
	s.list(c, repository.ProductFilter{Category: category})
}

func (s *CatalogServer) list(c *gin.Context, f repository.ProductFilter) {
	list, err := s.products.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type stockReq struct {
	Quantity int `json:"quantity" binding:"required"`
}

// @Summary Adjust stock
// @Description Adds a signed quantity to the stock. A negative result is rejected with 409.
// @Tags products
// @Accept json
// @Produce json
// @Param id path int true "Product ID"
// @Param input body stockReq true "Signed delta"
// @Success 200 {object} domain.Product
// @Failure 404 {object} errorBody
// @Failure 409 {object} errorBody
// @Router /products/{id}/stock [patch]
func (s *CatalogServer) adjustStock(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid id")
		return
	}
	var req stockReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	p, err := s.products.AdjustStock(c.Request.Context(), id, req.Quantity)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, p)
}
