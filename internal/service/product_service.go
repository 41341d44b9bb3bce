package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"orderflow/internal/domain"
	"orderflow/internal/repository"
)

// LowStockThreshold остаток ниже порога считается низким
const LowStockThreshold = 5

// ProductService бизнес-логика каталога товаров
type ProductService struct {
	repo repository.ProductRepository
	tx   repository.TxManager
	log  *slog.Logger
}

func NewProductService(repo repository.ProductRepository, tx repository.TxManager, log *slog.Logger) *ProductService {
	if log == nil {
		log = slog.Default()
	}
	return &ProductService{repo: repo, tx: tx, log: log}
}

func validateProduct(p domain.Product) error {
	verr := &domain.ValidationError{}
	if strings.TrimSpace(p.Name) == "" {
		verr.Add("name", "must not be blank")
	}
	switch {
	case !p.Price.IsPositive():
		verr.Add("price", "must be greater than 0")
	case !domain.FitsMoneyScale(p.Price):
		verr.Add("price", fmt.Sprintf("must have at most %d fraction digits", domain.MoneyScale))
	}
	if p.Stock < 0 {
		verr.Add("stock", "must not be negative")
	}
	switch p.Category {
	case domain.CategoryElectronics, domain.CategoryFood, domain.CategoryBooks, domain.CategoryOther:
	default:
		verr.Add("category", "must be one of ELECTRONICS, FOOD, BOOKS, OTHER")
	}
	return verr.OrNil()
}

func notFoundProduct(err error, id int64) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.NotFound("Product", id)
	}
	return err
}

func (s *ProductService) Create(ctx context.Context, p domain.Product) (*domain.Product, error) {
	p.Category = domain.Category(strings.ToUpper(string(p.Category)))
	if p.Category == "" {
		p.Category = domain.CategoryOther
	}
	if err := validateProduct(p); err != nil {
		return nil, err
	}
	cp := p
	if err := s.repo.Create(ctx, &cp); err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "product created", "productId", cp.ID, "stock", cp.Stock)
	return &cp, nil
}

func (s *ProductService) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundProduct(err, id)
	}
	return p, nil
}

// Update перезаписывает поля товара; чтение и запись под одной транзакцией,
// чтобы параллельное списание остатка не потерялось
func (s *ProductService) Update(ctx context.Context, p domain.Product) (*domain.Product, error) {
	p.Category = domain.Category(strings.ToUpper(string(p.Category)))
	if err := validateProduct(p); err != nil {
		return nil, err
	}
	var updated *domain.Product
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.repo.GetByID(ctx, p.ID); err != nil {
			return err
		}
		cp := p
		if err := s.repo.Update(ctx, &cp); err != nil {
			return err
		}
		updated = &cp
		return nil
	})
	if err != nil {
		return nil, notFoundProduct(err, p.ID)
	}
	return updated, nil
}

func (s *ProductService) Delete(ctx context.Context, id int64) error {
	return notFoundProduct(s.repo.Delete(ctx, id), id)
}

func (s *ProductService) List(ctx context.Context, f repository.ProductFilter) ([]domain.Product, error) {
	return s.repo.List(ctx, f)
}

// AdjustStock прибавляет знаковую delta к остатку; уход в минус отклоняется
func (s *ProductService) AdjustStock(ctx context.Context, id int64, delta int) (*domain.Product, error) {
	p, err := s.repo.AdjustStock(ctx, id, delta)
	if err != nil {
		return nil, notFoundProduct(err, id)
	}
	s.log.InfoContext(ctx, "stock adjusted", "productId", id, "delta", delta, "stock", p.Stock)
	return p, nil
}

// LowStock количество активных товаров с остатком ниже порога
func (s *ProductService) LowStock(ctx context.Context) (int, error) {
	return s.repo.CountLowStock(ctx, LowStockThreshold)
}
