package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"appgestor/backend/internal/domain"
	"appgestor/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(category,''), purchase_price_cents, sale_price_cents,
			stock_current, stock_min, created_at, updated_at
		FROM products
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.PurchasePriceCents, &p.SalePriceCents, &p.StockCurrent, &p.StockMin, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		p.UpdatedAt = p.UpdatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(category,''), purchase_price_cents, sale_price_cents,
			stock_current, stock_min, created_at, updated_at
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.Category, &p.PurchasePriceCents, &p.SalePriceCents, &p.StockCurrent, &p.StockMin, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PurchasePriceCents < 0 || product.SalePriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.StockCurrent < 0 || product.StockMin < 0 {
		return nil, store.ErrInvalidInput
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, category, purchase_price_cents, sale_price_cents, stock_current, stock_min, created_at, updated_at)
		VALUES ($1, NULLIF($2,''), $3, $4, $5, $6, now(), now())
		RETURNING id, created_at, updated_at
	`, product.Name, product.Category, product.PurchasePriceCents, product.SalePriceCents, product.StockCurrent, product.StockMin).
		Scan(&product.ID, &product.CreatedAt, &product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	product.CreatedAt = product.CreatedAt.UTC()
	product.UpdatedAt = product.UpdatedAt.UTC()
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Name == "" || product.PurchasePriceCents < 0 || product.SalePriceCents < 0 {
		return nil, store.ErrInvalidInput
	}
	if product.StockCurrent < 0 || product.StockMin < 0 {
		return nil, store.ErrInvalidInput
	}

	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET name = $2, category = NULLIF($3,''), purchase_price_cents = $4, sale_price_cents = $5,
			stock_current = $6, stock_min = $7, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, product.ID, product.Name, product.Category, product.PurchasePriceCents, product.SalePriceCents, product.StockCurrent, product.StockMin).
		Scan(&product.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	product.UpdatedAt = product.UpdatedAt.UTC()
	updated := product
	return &updated, nil
}

// DeleteProduct removes a product only when no sales reference it. The guard
// and the delete share one transaction so a concurrent sale cannot slip in
// between them.
func (s *Store) DeleteProduct(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT true FROM products WHERE id = $1 FOR UPDATE`, id).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	var hasSales bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sales WHERE product_id = $1)`, id).Scan(&hasSales); err != nil {
		return err
	}
	if hasSales {
		return store.ErrProductInUse
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.product_id, p.name, s.quantity, s.total_price_cents, s.created_at
		FROM sales s
		JOIN products p ON p.id = s.product_id
		ORDER BY s.created_at DESC, s.id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSales(rows)
}

// CreateSale inserts the sale and debits the product's stock in a single
// serializable transaction. The product row is locked first so two
// concurrent sales of the same product cannot both pass the stock check.
func (s *Store) CreateSale(ctx context.Context, productID int64, quantity int) (*domain.Sale, error) {
	if quantity < 1 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var name string
	var salePrice int64
	var stock int
	err = tx.QueryRowContext(ctx, `
		SELECT name, sale_price_cents, stock_current
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, productID).Scan(&name, &salePrice, &stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if stock < quantity {
		return nil, store.ErrInsufficientStock
	}

	sale := domain.Sale{
		ProductID:       productID,
		ProductName:     name,
		Quantity:        quantity,
		UnitPriceCents:  salePrice,
		TotalPriceCents: salePrice * int64(quantity),
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO sales (product_id, quantity, total_price_cents, created_at)
		VALUES ($1, $2, $3, now())
		RETURNING id, created_at
	`, sale.ProductID, sale.Quantity, sale.TotalPriceCents).Scan(&sale.ID, &sale.CreatedAt)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products
		SET stock_current = stock_current - $2, updated_at = now()
		WHERE id = $1
	`, productID, quantity)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	sale.CreatedAt = sale.CreatedAt.UTC()
	return &sale, nil
}

// UpdateSale reconciles stock across potentially two products. Feasibility
// is checked against the stock the product would have after the old quantity
// is restored, then the net debit is applied. The sale row is written last.
func (s *Store) UpdateSale(ctx context.Context, saleID int64, productID int64, quantity int) (*domain.Sale, error) {
	if quantity < 1 {
		return nil, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var oldProductID int64
	var oldQuantity int
	var createdAt time.Time
	err = tx.QueryRowContext(ctx, `
		SELECT product_id, quantity, created_at
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, saleID).Scan(&oldProductID, &oldQuantity, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	var name string
	var salePrice int64
	var stock int
	err = tx.QueryRowContext(ctx, `
		SELECT name, sale_price_cents, stock_current
		FROM products
		WHERE id = $1
		FOR UPDATE
	`, productID).Scan(&name, &salePrice, &stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if productID == oldProductID {
		// Restored stock is what the product would hold if the old sale
		// had never happened.
		if stock+oldQuantity < quantity {
			return nil, store.ErrInsufficientStock
		}
		delta := oldQuantity - quantity
		if delta != 0 {
			_, err = tx.ExecContext(ctx, `
				UPDATE products
				SET stock_current = stock_current + $2, updated_at = now()
				WHERE id = $1
			`, productID, delta)
			if err != nil {
				return nil, err
			}
		}
	} else {
		if stock < quantity {
			return nil, store.ErrInsufficientStock
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET stock_current = stock_current + $2, updated_at = now()
			WHERE id = $1
		`, oldProductID, oldQuantity)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET stock_current = stock_current - $2, updated_at = now()
			WHERE id = $1
		`, productID, quantity)
		if err != nil {
			return nil, err
		}
	}

	total := salePrice * int64(quantity)
	_, err = tx.ExecContext(ctx, `
		UPDATE sales
		SET product_id = $2, quantity = $3, total_price_cents = $4
		WHERE id = $1
	`, saleID, productID, quantity, total)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &domain.Sale{
		ID:              saleID,
		ProductID:       productID,
		ProductName:     name,
		Quantity:        quantity,
		UnitPriceCents:  salePrice,
		TotalPriceCents: total,
		CreatedAt:       createdAt.UTC(),
	}, nil
}

// DeleteSale restores the sold quantity to the product and removes the sale
// row, atomically.
func (s *Store) DeleteSale(ctx context.Context, saleID int64) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var productID int64
	var quantity int
	err = tx.QueryRowContext(ctx, `
		SELECT product_id, quantity
		FROM sales
		WHERE id = $1
		FOR UPDATE
	`, saleID).Scan(&productID, &quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products
		SET stock_current = stock_current + $2, updated_at = now()
		WHERE id = $1
	`, productID, quantity)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM sales WHERE id = $1`, saleID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}

	return tx.Commit()
}

func (s *Store) TopProducts(ctx context.Context, limit int) ([]domain.TopProduct, error) {
	if limit < 1 {
		limit = 3
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, COALESCE(p.category,''),
			SUM(s.quantity) AS total_quantity,
			SUM(s.total_price_cents) AS total_revenue_cents
		FROM sales s
		JOIN products p ON p.id = s.product_id
		GROUP BY p.id, p.name, p.category
		ORDER BY total_quantity DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	top := make([]domain.TopProduct, 0, limit)
	for rows.Next() {
		var item domain.TopProduct
		if err := rows.Scan(&item.ProductID, &item.Name, &item.Category, &item.TotalQuantity, &item.RevenueCents); err != nil {
			return nil, err
		}
		top = append(top, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return top, nil
}

func (s *Store) LowStockProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(category,''), purchase_price_cents, sale_price_cents,
			stock_current, stock_min, created_at, updated_at
		FROM products
		WHERE stock_current <= stock_min
		ORDER BY stock_current ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 16)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Category, &p.PurchasePriceCents, &p.SalePriceCents, &p.StockCurrent, &p.StockMin, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		p.UpdatedAt = p.UpdatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return products, nil
}

func (s *Store) LastSales(ctx context.Context, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.product_id, p.name, s.quantity, s.total_price_cents, s.created_at
		FROM sales s
		JOIN products p ON p.id = s.product_id
		ORDER BY s.created_at DESC, s.id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSales(rows)
}

// FinancialAggregates sums quantity, revenue, and cost per product. The date
// bounds arrive as pre-computed UTC instants; local-calendar bucketing is the
// caller's concern.
func (s *Store) FinancialAggregates(ctx context.Context, from, to time.Time, filtered bool) ([]domain.FinancialAggregate, error) {
	query := `
		SELECT p.id, p.name, COALESCE(p.category,''),
			SUM(s.quantity) AS total_quantity,
			SUM(s.total_price_cents) AS total_revenue_cents,
			SUM(s.quantity * p.purchase_price_cents) AS total_cost_cents
		FROM sales s
		JOIN products p ON p.id = s.product_id
	`
	args := []any{}
	if filtered {
		query += ` WHERE s.created_at >= $1 AND s.created_at < $2`
		args = append(args, from, to)
	}
	query += ` GROUP BY p.id, p.name, p.category ORDER BY total_revenue_cents DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	aggregates := make([]domain.FinancialAggregate, 0, 32)
	for rows.Next() {
		var agg domain.FinancialAggregate
		if err := rows.Scan(&agg.ProductID, &agg.Name, &agg.Category, &agg.TotalQuantity, &agg.RevenueCents, &agg.CostCents); err != nil {
			return nil, err
		}
		aggregates = append(aggregates, agg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return aggregates, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	if user.Name == "" || user.Email == "" || user.PasswordHash == "" {
		return nil, store.ErrInvalidInput
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, password_hash, role, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, created_at
	`, user.Name, user.Email, user.PasswordHash, user.Role).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	user.CreatedAt = user.CreatedAt.UTC()
	created := user
	return &created, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.findUser(ctx, `WHERE email = $1`, email)
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*domain.User, error) {
	return s.findUser(ctx, `WHERE id = $1`, id)
}

func (s *Store) findUser(ctx context.Context, where string, arg any) (*domain.User, error) {
	var user domain.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, password_hash, role, created_at
		FROM users
	`+where, arg).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

func scanSales(rows *sql.Rows) ([]domain.Sale, error) {
	sales := make([]domain.Sale, 0, 32)
	for rows.Next() {
		var sale domain.Sale
		if err := rows.Scan(&sale.ID, &sale.ProductID, &sale.ProductName, &sale.Quantity, &sale.TotalPriceCents, &sale.CreatedAt); err != nil {
			return nil, err
		}
		if sale.Quantity > 0 {
			sale.UnitPriceCents = sale.TotalPriceCents / int64(sale.Quantity)
		}
		sale.CreatedAt = sale.CreatedAt.UTC()
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(strings.ToLower(err.Error()), "duplicate key")
}
