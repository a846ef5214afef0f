// Package memory implements the repository in process memory. It backs unit
// tests and the dev mode used when DATABASE_URL is unset.
package memory

import (
	"context"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"appgestor/backend/internal/domain"
	"appgestor/backend/internal/store"
)

type Store struct {
	mu            sync.RWMutex
	products      map[int64]domain.Product
	sales         map[int64]domain.Sale
	usersByID     map[int64]domain.User
	usersByEmail  map[string]int64
	nextProductID int64
	nextSaleID    int64
	nextUserID    int64
}

func New() *Store {
	return &Store{
		products:      make(map[int64]domain.Product),
		sales:         make(map[int64]domain.Sale),
		usersByID:     make(map[int64]domain.User),
		usersByEmail:  make(map[string]int64),
		nextProductID: 1,
		nextSaleID:    1,
		nextUserID:    1,
	}
}

// NewSeeded returns a store pre-loaded with a small wine-bar catalog and two
// demo accounts. Seed credentials come from SEED_MANAGER_PASSWORD and
// SEED_ATTENDANT_PASSWORD; hardcoded dev defaults apply when unset.
func NewSeeded() *Store {
	s := New()

	now := time.Now().UTC()
	for _, p := range []domain.Product{
		{Name: "Vinho Tinto Reserva", Category: "vinho", PurchasePriceCents: 4500, SalePriceCents: 9800, StockCurrent: 24, StockMin: 6},
		{Name: "Vinho Branco Seco", Category: "vinho", PurchasePriceCents: 3800, SalePriceCents: 8200, StockCurrent: 18, StockMin: 6},
		{Name: "Espumante Brut", Category: "vinho", PurchasePriceCents: 5200, SalePriceCents: 11500, StockCurrent: 12, StockMin: 4},
		{Name: "Tábua de Frios", Category: "petisco", PurchasePriceCents: 2800, SalePriceCents: 6900, StockCurrent: 10, StockMin: 3},
		{Name: "Azeitonas Temperadas", Category: "petisco", PurchasePriceCents: 900, SalePriceCents: 2400, StockCurrent: 30, StockMin: 8},
		{Name: "Água com Gás", Category: "bebida", PurchasePriceCents: 250, SalePriceCents: 800, StockCurrent: 48, StockMin: 12},
	} {
		p.ID = s.nextProductID
		s.nextProductID++
		p.CreatedAt = now
		p.UpdatedAt = now
		s.products[p.ID] = p
	}

	managerPwd := envOr("SEED_MANAGER_PASSWORD", "manager123")
	attendantPwd := envOr("SEED_ATTENDANT_PASSWORD", "attendant123")
	if os.Getenv("SEED_MANAGER_PASSWORD") == "" || os.Getenv("SEED_ATTENDANT_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_MANAGER_PASSWORD and SEED_ATTENDANT_PASSWORD to override.")
	}

	for _, u := range []struct {
		name     string
		email    string
		password string
		role     string
	}{
		{"Gestora", "manager@appgestor.local", managerPwd, domain.RoleManager},
		{"Atendente", "attendant@appgestor.local", attendantPwd, domain.RoleAttendant},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.email, err)
		}
		user := domain.User{
			ID:           s.nextUserID,
			Name:         u.name,
			Email:        u.email,
			PasswordHash: string(hash),
			Role:         u.role,
			CreatedAt:    now,
		}
		s.nextUserID++
		s.usersByID[user.ID] = user
		s.usersByEmail[user.Email] = user.ID
	}

	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool {
		return products[i].Name < products[j].Name
	})
	return products, nil
}

func (s *Store) GetProductByID(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := p
	return &copied, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PurchasePriceCents < 0 || product.SalePriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.StockCurrent < 0 || product.StockMin < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.products {
		if strings.EqualFold(existing.Name, product.Name) {
			return nil, store.ErrDuplicate
		}
	}

	now := time.Now().UTC()
	product.ID = s.nextProductID
	s.nextProductID++
	product.CreatedAt = now
	product.UpdatedAt = now
	s.products[product.ID] = product

	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PurchasePriceCents < 0 || product.SalePriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.StockCurrent < 0 || product.StockMin < 0 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	for id, other := range s.products {
		if id != product.ID && strings.EqualFold(other.Name, product.Name) {
			return nil, store.ErrDuplicate
		}
	}

	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product

	updated := product
	return &updated, nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return store.ErrNotFound
	}
	for _, sale := range s.sales {
		if sale.ProductID == id {
			return store.ErrProductInUse
		}
	}

	delete(s.products, id)
	return nil
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sortedSalesLocked(0), nil
}

func (s *Store) CreateSale(_ context.Context, productID int64, quantity int) (*domain.Sale, error) {
	return s.createSaleAt(productID, quantity, time.Now().UTC())
}

// RecordSaleAt inserts a sale with an explicit timestamp. Used by tests and
// seeding to exercise calendar bucketing; production paths go through
// CreateSale.
func (s *Store) RecordSaleAt(productID int64, quantity int, at time.Time) (*domain.Sale, error) {
	return s.createSaleAt(productID, quantity, at.UTC())
}

func (s *Store) createSaleAt(productID int64, quantity int, at time.Time) (*domain.Sale, error) {
	if quantity < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if product.StockCurrent < quantity {
		return nil, store.ErrInsufficientStock
	}

	sale := domain.Sale{
		ID:              s.nextSaleID,
		ProductID:       productID,
		ProductName:     product.Name,
		Quantity:        quantity,
		UnitPriceCents:  product.SalePriceCents,
		TotalPriceCents: product.SalePriceCents * int64(quantity),
		CreatedAt:       at,
	}
	s.nextSaleID++
	s.sales[sale.ID] = sale

	product.StockCurrent -= quantity
	product.UpdatedAt = time.Now().UTC()
	s.products[productID] = product

	created := sale
	return &created, nil
}

func (s *Store) UpdateSale(_ context.Context, saleID int64, productID int64, quantity int) (*domain.Sale, error) {
	if quantity < 1 {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[saleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	product, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}

	if productID == sale.ProductID {
		if product.StockCurrent+sale.Quantity < quantity {
			return nil, store.ErrInsufficientStock
		}
		product.StockCurrent += sale.Quantity - quantity
		product.UpdatedAt = time.Now().UTC()
		s.products[productID] = product
	} else {
		if product.StockCurrent < quantity {
			return nil, store.ErrInsufficientStock
		}
		oldProduct := s.products[sale.ProductID]
		oldProduct.StockCurrent += sale.Quantity
		oldProduct.UpdatedAt = time.Now().UTC()
		s.products[sale.ProductID] = oldProduct

		product.StockCurrent -= quantity
		product.UpdatedAt = time.Now().UTC()
		s.products[productID] = product
	}

	sale.ProductID = productID
	sale.ProductName = product.Name
	sale.Quantity = quantity
	sale.UnitPriceCents = product.SalePriceCents
	sale.TotalPriceCents = product.SalePriceCents * int64(quantity)
	s.sales[saleID] = sale

	updated := sale
	return &updated, nil
}

func (s *Store) DeleteSale(_ context.Context, saleID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[saleID]
	if !ok {
		return store.ErrNotFound
	}

	if product, ok := s.products[sale.ProductID]; ok {
		product.StockCurrent += sale.Quantity
		product.UpdatedAt = time.Now().UTC()
		s.products[sale.ProductID] = product
	}

	delete(s.sales, saleID)
	return nil
}

func (s *Store) TopProducts(_ context.Context, limit int) ([]domain.TopProduct, error) {
	if limit < 1 {
		limit = 3
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	byProduct := make(map[int64]*domain.TopProduct)
	for _, sale := range s.sales {
		entry, ok := byProduct[sale.ProductID]
		if !ok {
			product := s.products[sale.ProductID]
			entry = &domain.TopProduct{
				ProductID: sale.ProductID,
				Name:      product.Name,
				Category:  product.Category,
			}
			byProduct[sale.ProductID] = entry
		}
		entry.TotalQuantity += sale.Quantity
		entry.RevenueCents += sale.TotalPriceCents
	}

	top := make([]domain.TopProduct, 0, len(byProduct))
	for _, entry := range byProduct {
		top = append(top, *entry)
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].TotalQuantity != top[j].TotalQuantity {
			return top[i].TotalQuantity > top[j].TotalQuantity
		}
		return top[i].ProductID < top[j].ProductID
	})
	if len(top) > limit {
		top = top[:limit]
	}
	return top, nil
}

func (s *Store) LowStockProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	low := make([]domain.Product, 0, 8)
	for _, p := range s.products {
		if p.StockCurrent <= p.StockMin {
			low = append(low, p)
		}
	}
	sort.Slice(low, func(i, j int) bool {
		if low[i].StockCurrent != low[j].StockCurrent {
			return low[i].StockCurrent < low[j].StockCurrent
		}
		return low[i].ID < low[j].ID
	})
	return low, nil
}

func (s *Store) LastSales(_ context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sortedSalesLocked(limit), nil
}

func (s *Store) FinancialAggregates(_ context.Context, from, to time.Time, filtered bool) ([]domain.FinancialAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byProduct := make(map[int64]*domain.FinancialAggregate)
	for _, sale := range s.sales {
		if filtered && (sale.CreatedAt.Before(from) || !sale.CreatedAt.Before(to)) {
			continue
		}
		entry, ok := byProduct[sale.ProductID]
		if !ok {
			product := s.products[sale.ProductID]
			entry = &domain.FinancialAggregate{
				ProductID: sale.ProductID,
				Name:      product.Name,
				Category:  product.Category,
			}
			byProduct[sale.ProductID] = entry
		}
		product := s.products[sale.ProductID]
		entry.TotalQuantity += sale.Quantity
		entry.RevenueCents += sale.TotalPriceCents
		entry.CostCents += int64(sale.Quantity) * product.PurchasePriceCents
	}

	aggregates := make([]domain.FinancialAggregate, 0, len(byProduct))
	for _, entry := range byProduct {
		aggregates = append(aggregates, *entry)
	}
	sort.Slice(aggregates, func(i, j int) bool {
		if aggregates[i].RevenueCents != aggregates[j].RevenueCents {
			return aggregates[i].RevenueCents > aggregates[j].RevenueCents
		}
		return aggregates[i].ProductID < aggregates[j].ProductID
	})
	return aggregates, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.User) (*domain.User, error) {
	if user.Name == "" || user.Email == "" || user.PasswordHash == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByEmail[user.Email]; exists {
		return nil, store.ErrDuplicate
	}

	user.ID = s.nextUserID
	s.nextUserID++
	user.CreatedAt = time.Now().UTC()
	s.usersByID[user.ID] = user
	s.usersByEmail[user.Email] = user.ID

	created := user
	return &created, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[email]
	if !ok {
		return nil, store.ErrNotFound
	}
	user := s.usersByID[id]
	return &user, nil
}

func (s *Store) GetUserByID(_ context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := user
	return &copied, nil
}

// sortedSalesLocked returns sales newest-first; limit 0 means all. Caller
// must hold at least the read lock.
func (s *Store) sortedSalesLocked(limit int) []domain.Sale {
	sales := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		sales = append(sales, sale)
	}
	sort.Slice(sales, func(i, j int) bool {
		if !sales[i].CreatedAt.Equal(sales[j].CreatedAt) {
			return sales[i].CreatedAt.After(sales[j].CreatedAt)
		}
		return sales[i].ID > sales[j].ID
	})
	if limit > 0 && len(sales) > limit {
		sales = sales[:limit]
	}
	return sales
}
