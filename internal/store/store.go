package store

import (
	"context"
	"errors"
	"time"

	"appgestor/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidInput      = errors.New("invalid input")
	ErrDuplicate         = errors.New("already exists")
	ErrProductInUse      = errors.New("product has recorded sales")
)

// Repository is the persistence contract. Sale mutations are atomic: the
// sale row change and the matching stock adjustment either both apply or
// neither does.
type Repository interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id int64) error

	ListSales(ctx context.Context) ([]domain.Sale, error)
	CreateSale(ctx context.Context, productID int64, quantity int) (*domain.Sale, error)
	UpdateSale(ctx context.Context, saleID int64, productID int64, quantity int) (*domain.Sale, error)
	DeleteSale(ctx context.Context, saleID int64) error

	TopProducts(ctx context.Context, limit int) ([]domain.TopProduct, error)
	LowStockProducts(ctx context.Context) ([]domain.Product, error)
	LastSales(ctx context.Context, limit int) ([]domain.Sale, error)
	FinancialAggregates(ctx context.Context, from, to time.Time, filtered bool) ([]domain.FinancialAggregate, error)

	CreateUser(ctx context.Context, user domain.User) (*domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)
	GetUserByID(ctx context.Context, id int64) (*domain.User, error)
}
