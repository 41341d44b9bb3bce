package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Виды ошибок. Конкретные ошибки ниже сопоставляются с ними через errors.Is.
var (
	ErrResourceNotFound      = errors.New("resource not found")
	ErrInsufficientStock     = errors.New("insufficient stock")
	ErrIllegalTransition     = errors.New("illegal status transition")
	ErrInvalidStatus         = errors.New("invalid order status")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrInvalidCredential     = errors.New("credential rejected by dependency")
	ErrValidation            = errors.New("validation failed")
)

// NotFoundError отсутствующий покупатель, заказ или товар
type NotFoundError struct {
	Resource string
	ID       int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found with id: %d", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrResourceNotFound }

// NotFound конструктор NotFoundError
func NotFound(resource string, id int64) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// StockError запрошено больше, чем есть на складе
type StockError struct {
	ProductID int64
	Available int
	Requested int
}

// AvailableUnknown остаток неизвестен: каталог его не сообщил
const AvailableUnknown = -1

// AvailableKnown остаток сообщён каталогом
func (e *StockError) AvailableKnown() bool { return e.Available >= 0 }

func (e *StockError) Error() string {
	if !e.AvailableKnown() {
		return fmt.Sprintf("product %d is out of stock. Quantity: %d", e.ProductID, e.Requested)
	}
	return fmt.Sprintf("product %d is out of stock. Stock: %d, Quantity: %d", e.ProductID, e.Available, e.Requested)
}

func (e *StockError) Is(target error) bool { return target == ErrInsufficientStock }

// TransitionError переход запрещён таблицей статусов
type TransitionError struct {
	From OrderStatus
	To   OrderStatus
}

func (e *TransitionError) Error() string {
	if e.From.Terminal() {
		return fmt.Sprintf("order is cancelled or delivered, status cannot be changed. Status: %s", strings.ToLower(string(e.From)))
	}
	return fmt.Sprintf("cannot move order from %s to %s. Status: %s",
		strings.ToLower(string(e.From)), strings.ToLower(string(e.To)), strings.ToLower(string(e.From)))
}

func (e *TransitionError) Is(target error) bool { return target == ErrIllegalTransition }

// StatusError нераспознанный статус
type StatusError struct {
	Value string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("order status '%s' is not valid", e.Value)
}

func (e *StatusError) Is(target error) bool { return target == ErrInvalidStatus }

// DependencyError зависимость не ответила на проверку доступности или вызов
type DependencyError struct {
	Service  string
	Resource string
	Value    string
	Err      error
}

func (e *DependencyError) Error() string {
	msg := fmt.Sprintf("unable to reach %s, resource %s: %s", e.Service, e.Resource, e.Value)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DependencyError) Is(target error) bool { return target == ErrDependencyUnavailable }

func (e *DependencyError) Unwrap() error { return e.Err }

// CredentialError зависимость отклонила переданный токен
type CredentialError struct {
	Service string
}

func (e *CredentialError) Error() string {
	return "credential rejected by " + e.Service
}

func (e *CredentialError) Is(target error) bool { return target == ErrInvalidCredential }

// ValidationError ошибки по полям запроса
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Add добавляет ошибку поля
func (e *ValidationError) Add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = msg
}

// OrNil возвращает nil, если ошибок нет
func (e *ValidationError) OrNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}
