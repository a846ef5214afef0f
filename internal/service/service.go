package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"appgestor/backend/internal/cache"
	"appgestor/backend/internal/domain"
	"appgestor/backend/internal/localtime"
	"appgestor/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const (
	topProductsLimit = 3
	lastSalesLimit   = 10

	cacheKeyTopProducts = "reports:top-products"
	cacheKeyLowStock    = "reports:low-stock"
	cacheKeyLastSales   = "reports:last-sales"
)

type Service struct {
	repo      store.Repository
	reports   cache.ReportCache
	logger    *zap.Logger
	loc       *time.Location
	reportTTL time.Duration
}

func New(repo store.Repository, reports cache.ReportCache, logger *zap.Logger, loc *time.Location, reportTTL time.Duration) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	if reportTTL <= 0 {
		reportTTL = 30 * time.Second
	}

	return &Service{
		repo:      repo,
		reports:   reports,
		logger:    logger,
		loc:       loc,
		reportTTL: reportTTL,
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)

	if req.Name == "" {
		return domain.Product{}, fmt.Errorf("%w: name is required", store.ErrInvalidInput)
	}
	if req.PurchasePriceCents < 0 || req.SalePriceCents < 0 || req.StockCurrent < 0 || req.StockMin < 0 {
		return domain.Product{}, fmt.Errorf("%w: prices and stock must not be negative", store.ErrInvalidInput)
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:               req.Name,
		Category:           req.Category,
		PurchasePriceCents: req.PurchasePriceCents,
		SalePriceCents:     req.SalePriceCents,
		StockCurrent:       req.StockCurrent,
		StockMin:           req.StockMin,
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateReports(ctx)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, req domain.ProductUpdateRequest) (domain.Product, error) {
	existing, err := s.repo.GetProductByID(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("%w: name must not be empty", store.ErrInvalidInput)
		}
		updated.Name = name
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.PurchasePriceCents != nil {
		updated.PurchasePriceCents = *req.PurchasePriceCents
	}
	if req.SalePriceCents != nil {
		updated.SalePriceCents = *req.SalePriceCents
	}
	if req.StockCurrent != nil {
		updated.StockCurrent = *req.StockCurrent
	}
	if req.StockMin != nil {
		updated.StockMin = *req.StockMin
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	s.invalidateReports(ctx)
	return *saved, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) error {
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	s.invalidateReports(ctx)
	return nil
}

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.repo.ListSales(ctx)
}

func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	if req.ProductID < 1 || req.Quantity < 1 {
		return domain.Sale{}, fmt.Errorf("%w: product and positive quantity are required", store.ErrInvalidInput)
	}

	sale, err := s.repo.CreateSale(ctx, req.ProductID, req.Quantity)
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateReports(ctx)
	return *sale, nil
}

func (s *Service) UpdateSale(ctx context.Context, saleID int64, req domain.SaleUpdateRequest) (domain.Sale, error) {
	if req.ProductID < 1 || req.Quantity < 1 {
		return domain.Sale{}, fmt.Errorf("%w: product and positive quantity are required", store.ErrInvalidInput)
	}

	sale, err := s.repo.UpdateSale(ctx, saleID, req.ProductID, req.Quantity)
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateReports(ctx)
	return *sale, nil
}

func (s *Service) DeleteSale(ctx context.Context, saleID int64) error {
	if err := s.repo.DeleteSale(ctx, saleID); err != nil {
		return err
	}
	s.invalidateReports(ctx)
	return nil
}

func (s *Service) TopProducts(ctx context.Context) ([]domain.TopProduct, error) {
	var cached []domain.TopProduct
	if ok := s.cachedReport(ctx, cacheKeyTopProducts, &cached); ok {
		return cached, nil
	}

	top, err := s.repo.TopProducts(ctx, topProductsLimit)
	if err != nil {
		return nil, err
	}

	s.storeReport(ctx, cacheKeyTopProducts, top)
	return top, nil
}

func (s *Service) LowStockProducts(ctx context.Context) ([]domain.Product, error) {
	var cached []domain.Product
	if ok := s.cachedReport(ctx, cacheKeyLowStock, &cached); ok {
		return cached, nil
	}

	low, err := s.repo.LowStockProducts(ctx)
	if err != nil {
		return nil, err
	}

	s.storeReport(ctx, cacheKeyLowStock, low)
	return low, nil
}

func (s *Service) LastSales(ctx context.Context) ([]domain.LastSale, error) {
	var cached []domain.LastSale
	if ok := s.cachedReport(ctx, cacheKeyLastSales, &cached); ok {
		return cached, nil
	}

	sales, err := s.repo.LastSales(ctx, lastSalesLimit)
	if err != nil {
		return nil, err
	}

	last := make([]domain.LastSale, 0, len(sales))
	for _, sale := range sales {
		last = append(last, domain.LastSale{
			ID:              sale.ID,
			ProductID:       sale.ProductID,
			ProductName:     sale.ProductName,
			Quantity:        sale.Quantity,
			TotalPriceCents: sale.TotalPriceCents,
			CreatedAt:       sale.CreatedAt,
			CreatedAtLocal:  localtime.Format(sale.CreatedAt, s.loc),
		})
	}

	s.storeReport(ctx, cacheKeyLastSales, last)
	return last, nil
}

// FinancialReport aggregates revenue, cost, profit, and margin per product.
// The optional month/year filter is interpreted in the business's local
// calendar before the store query is built.
func (s *Service) FinancialReport(ctx context.Context, month, year int) (domain.FinancialReport, error) {
	var from, to time.Time
	filtered := false

	switch {
	case month == 0 && year == 0:
		// no filter
	case month == 0 || year == 0:
		return domain.FinancialReport{}, fmt.Errorf("%w: month and year must be provided together", store.ErrInvalidInput)
	case month < 1 || month > 12:
		return domain.FinancialReport{}, fmt.Errorf("%w: month must be between 1 and 12", store.ErrInvalidInput)
	default:
		from, to = localtime.MonthRangeUTC(year, time.Month(month), s.loc)
		filtered = true
	}

	aggregates, err := s.repo.FinancialAggregates(ctx, from, to, filtered)
	if err != nil {
		return domain.FinancialReport{}, err
	}

	report := domain.FinancialReport{Items: make([]domain.FinancialLine, 0, len(aggregates))}
	for _, agg := range aggregates {
		profit := agg.RevenueCents - agg.CostCents
		margin := 0.0
		if agg.RevenueCents > 0 {
			margin = math.Round(float64(profit)/float64(agg.RevenueCents)*100*100) / 100
		}
		report.Items = append(report.Items, domain.FinancialLine{
			ProductID:     agg.ProductID,
			Name:          agg.Name,
			Category:      agg.Category,
			TotalQuantity: agg.TotalQuantity,
			RevenueCents:  agg.RevenueCents,
			CostCents:     agg.CostCents,
			ProfitCents:   profit,
			MarginPercent: margin,
		})
		report.Totals.RevenueCents += agg.RevenueCents
		report.Totals.CostCents += agg.CostCents
		report.Totals.ProfitCents += profit
	}

	return report, nil
}

func (s *Service) CurrentUser(ctx context.Context) (domain.UserView, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.UserView{}, store.ErrNotFound
	}
	user, err := s.repo.GetUserByID(ctx, actor.UserID)
	if err != nil {
		return domain.UserView{}, err
	}
	return user.View(), nil
}

// cachedReport loads a marshalled report into dest; cache failures degrade
// to a store read, never to a request failure.
func (s *Service) cachedReport(ctx context.Context, key string, dest any) bool {
	payload, found, err := s.reports.Get(ctx, key)
	if err != nil {
		s.logger.Warn("report cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !found {
		return false
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		s.logger.Warn("report cache payload corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *Service) storeReport(ctx context.Context, key string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := s.reports.Set(ctx, key, payload, s.reportTTL); err != nil {
		s.logger.Warn("report cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (s *Service) invalidateReports(ctx context.Context) {
	err := s.reports.Invalidate(ctx, cacheKeyTopProducts, cacheKeyLowStock, cacheKeyLastSales)
	if err != nil {
		s.logger.Warn("report cache invalidation failed", zap.Error(err))
	}
}
