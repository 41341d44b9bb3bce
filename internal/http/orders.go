package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"orderflow/internal/auth"
	"orderflow/internal/domain"
	"orderflow/internal/service"
)

// HealthCheck проверка одной зависимости для /actuator/health
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) bool
}

// OrderServer HTTP API сервиса заказов
type OrderServer struct {
	engine   *gin.Engine
	orders   *service.OrderService
	verifier *auth.Verifier
	idem     Claimer
	checks   []HealthCheck
	log      *slog.Logger
}

// OrderOption настройка OrderServer
type OrderOption func(*OrderServer)

// WithVerifier включает проверку подписи входящих токенов
func WithVerifier(v *auth.Verifier) OrderOption { return func(s *OrderServer) { s.verifier = v } }

// WithIdempotency включает обработку Idempotency-Key
func WithIdempotency(c Claimer) OrderOption { return func(s *OrderServer) { s.idem = c } }

func WithHealthChecks(checks ...HealthCheck) OrderOption {
	return func(s *OrderServer) { s.checks = append(s.checks, checks...) }
}

func NewOrderServer(orders *service.OrderService, log *slog.Logger, opts ...OrderOption) *OrderServer {
	if log == nil {
		log = slog.Default()
	}
	s := &OrderServer{orders: orders, log: log}
	for _, opt := range opts {
		opt(s)
	}
	s.engine = newEngine(log, "orders-service")
	s.registerRoutes()
	return s
}

func (s *OrderServer) Engine() *gin.Engine { return s.engine }

func (s *OrderServer) registerRoutes() {
	s.engine.GET("/health", liveness)
	registerDocs(s.engine, "orders")
	s.engine.GET("/actuator/health", s.dependencyHealth)

	orders := s.engine.Group("/api/v1/orders", authenticate(s.verifier, true, s.log))
	{
		orders.GET("", s.listOrders)
		orders.POST("", idempotent(s.idem, "create-order", s.log), s.createOrder)
		orders.GET("/:id", s.getOrder)
		orders.PUT("/:id/status", s.updateStatus)
		orders.DELETE("/:id", s.deleteOrder)
		orders.GET("/user/:userId", s.listByUser)
		orders.GET("/status/:status", s.listByStatus)
	}
}

func liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "UP"})
}

// @Summary Dependency health
// @Tags health
// @Produce json
// @Success 200 {object} map[string]any
// @Failure 503 {object} map[string]any
// @Router /actuator/health [get]
func (s *OrderServer) dependencyHealth(c *gin.Context) {
	status := "UP"
	components := make(map[string]string, len(s.checks))
	for _, hc := range s.checks {
		if hc.Check(c.Request.Context()) {
			components[hc.Name] = "UP"
			continue
		}
		components[hc.Name] = "DOWN"
		status = "DOWN"
	}
	code := http.StatusOK
	if status != "UP" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": status, "components": components})
}

type orderItemReq struct {
	ProductID int64 `json:"productId" binding:"required,gt=0"`
	Quantity  int   `json:"quantity" binding:"required,min=1"`
}

type createOrderReq struct {
	UserID          int64          `json:"userId" binding:"omitempty,gt=0"`
	Status          string         `json:"status"`
	ShippingAddress string         `json:"shippingAddress" binding:"required,max=255"`
	Items           []orderItemReq `json:"orderItems" binding:"required,min=1,dive"`
}

func (r createOrderReq) toDomain() domain.OrderRequest {
	out := domain.OrderRequest{
		UserID:          r.UserID,
		Status:          r.Status,
		ShippingAddress: r.ShippingAddress,
		Items:           make([]domain.OrderItemRequest, 0, len(r.Items)),
	}
	for _, it := range r.Items {
		out.Items = append(out.Items, domain.OrderItemRequest{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}

// @Summary Create order
// @Description Reserves stock in the catalog line by line and stores the order.
// @Tags orders
// @Accept json
// @Produce json
// @Param Idempotency-Key header string false "Idempotency key"
// @Param input body createOrderReq true "Order"
// @Success 201 {object} domain.Order
// @Failure 400 {object} errorBody
// @Failure 404 {object} errorBody
// @Failure 409 {object} errorBody
// @Failure 503 {object} errorBody
// @Router /orders [post]
func (s *OrderServer) createOrder(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	in := req.toDomain()
	if in.UserID == 0 {
		if id, ok := identityFrom(c); ok {
			in.UserID = id.UserID
		}
	}
	o, err := s.orders.Create(c.Request.Context(), credentialFrom(c), in)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

// @Summary Get order by id
// @Tags orders
// @Produce json
// @Param id path int true "Order ID"
// @Success 200 {object} domain.Order
// @Failure 400 {object} errorBody
// @Failure 404 {object} errorBody
// @Router /orders/{id} [get]
func (s *OrderServer) getOrder(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid id")
		return
	}
	o, err := s.orders.GetByID(c.Request.Context(), credentialFrom(c), id)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// @Summary List orders
// @Tags orders
// @Produce json
// @Success 200 {array} domain.Order
// @Router /orders [get]
func (s *OrderServer) listOrders(c *gin.Context) {
	list, err := s.orders.List(c.Request.Context())
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary List orders of a buyer
// @Tags orders
// @Produce json
// @Param userId path int true "User ID"
// @Success 200 {array} domain.Order
// @Failure 404 {object} errorBody
// @Router /orders/user/{userId} [get]
func (s *OrderServer) listByUser(c *gin.Context) {
	userID, err := parseID(c.Param("userId"))
	if err != nil {
		badRequest(c, "invalid user id")
		return
	}
	list, err := s.orders.ListByUser(c.Request.Context(), credentialFrom(c), userID)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// @Summary List orders by status
// @Tags orders
// @Produce json
// @Param status path string true "Status"
// @Success 200 {array} domain.Order
// @Failure 400 {object} errorBody
// @Router /orders/status/{status} [get]
func (s *OrderServer) listByStatus(c *gin.Context) {
	list, err := s.orders.ListByStatus(c.Request.Context(), c.Param("status"))
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

type updateStatusReq struct {
	Status string `json:"status" binding:"required"`
}

// @Summary Update order status
// @Tags orders
// @Accept json
// @Produce json
// @Param id path int true "Order ID"
// @Param input body updateStatusReq true "New status"
// @Success 200 {object} domain.Order
// @Failure 400 {object} errorBody
// @Failure 404 {object} errorBody
// @Failure 409 {object} errorBody
// @Router /orders/{id}/status [put]
func (s *OrderServer) updateStatus(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid id")
		return
	}
	var req updateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	o, err := s.orders.UpdateStatus(c.Request.Context(), id, req.Status)
	if err != nil {
		writeError(c, s.log, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

// @Summary Delete order
// @Tags orders
// @Param id path int true "Order ID"
// @Success 204
// @Failure 404 {object} errorBody
// @Router /orders/{id} [delete]
func (s *OrderServer) deleteOrder(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid id")
		return
	}
	if err := s.orders.Delete(c.Request.Context(), id); err != nil {
		writeError(c, s.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, strconv.ErrRange
	}
	return id, nil
}
