package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// MaxShippingAddressLen предельная длина адреса доставки в символах
const MaxShippingAddressLen = 255

// MoneyScale знаков после запятой в ценах и суммах
const MoneyScale = 2

// FitsMoneyScale сумма хранится без округления
func FitsMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}

// Category категория товара в каталоге
type Category string

const (
	CategoryElectronics Category = "ELECTRONICS"
	CategoryFood        Category = "FOOD"
	CategoryBooks       Category = "BOOKS"
	CategoryOther       Category = "OTHER"
)

// Product товар каталога
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Category    Category        `json:"category"`
	ImageURL    string          `json:"imageUrl,omitempty"`
	Active      bool            `json:"active"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// ProductSnapshot состояние товара, прочитанное из каталога в момент запроса.
// Не сохраняется и не кешируется между запросами.
type ProductSnapshot struct {
	ID    int64           `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

// Snapshot возвращает снимок товара в формате границы каталога
func (p Product) Snapshot() ProductSnapshot {
	return ProductSnapshot{ID: p.ID, Name: p.Name, Price: p.Price, Stock: p.Stock}
}

// OrderItem позиция заказа. Имя и цена копируются из каталога при создании.
type OrderItem struct {
	ID          int64           `json:"id"`
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Quantity    int             `json:"quantity"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

// NewOrderItem фиксирует цену и имя товара из снимка
func NewOrderItem(snap ProductSnapshot, quantity int) OrderItem {
	return OrderItem{
		ProductID:   snap.ID,
		ProductName: snap.Name,
		UnitPrice:   snap.Price,
		Quantity:    quantity,
		Subtotal:    snap.Price.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

// Order агрегат заказа; владеет своими позициями
type Order struct {
	ID              int64           `json:"id"`
	UserID          int64           `json:"userId"`
	OrderDate       time.Time       `json:"orderDate"`
	Status          OrderStatus     `json:"status"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	ShippingAddress string          `json:"shippingAddress"`
	Items           []OrderItem     `json:"orderItems"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// SumSubtotals пересчитывает сумму по позициям. TotalAmount после создания
// не пересчитывается, функция нужна только для сверки.
func (o Order) SumSubtotals() decimal.Decimal {
	total := decimal.Zero
	for _, it := range o.Items {
		total = total.Add(it.Subtotal)
	}
	return total
}

// OrderItemRequest запрошенная позиция
type OrderItemRequest struct {
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
}

// OrderRequest запрос на создание заказа
type OrderRequest struct {
	UserID          int64              `json:"userId"`
	Status          string             `json:"status"`
	ShippingAddress string             `json:"shippingAddress"`
	Items           []OrderItemRequest `json:"orderItems"`
}

// Validate проверяет запрос до любых обращений к зависимостям
func (r OrderRequest) Validate() error {
	verr := &ValidationError{}
	if r.UserID <= 0 {
		verr.Add("userId", "must be a positive id")
	}
	if r.Status != "" {
		if _, err := ParseStatus(r.Status); err != nil {
			verr.Add("status", err.Error())
		}
	}
	addr := strings.TrimSpace(r.ShippingAddress)
	switch {
	case addr == "":
		verr.Add("shippingAddress", "must not be blank")
	case utf8.RuneCountInString(r.ShippingAddress) > MaxShippingAddressLen:
		verr.Add("shippingAddress", fmt.Sprintf("must be at most %d characters", MaxShippingAddressLen))
	}
	if len(r.Items) == 0 {
		verr.Add("orderItems", "must not be empty")
	}
	for i, it := range r.Items {
		if it.ProductID <= 0 {
			verr.Add(fmt.Sprintf("orderItems[%d].productId", i), "must be a positive id")
		}
		if it.Quantity < 1 {
			verr.Add(fmt.Sprintf("orderItems[%d].quantity", i), "must be greater than or equal to 1")
		}
	}
	return verr.OrNil()
}

// Reservation подтверждённое каталогом списание остатка
type Reservation struct {
	ProductID int64     `json:"productId"`
	Quantity  int       `json:"quantity"`
	At        time.Time `json:"at"`
}
