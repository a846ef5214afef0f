package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"appgestor/backend/internal/store"
)

func TestSaleLifecycleKeepsStockConsistent(t *testing.T) {
	databaseURL := os.Getenv("APPGESTOR_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set APPGESTOR_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	nameA := fmt.Sprintf("Vinho IT %d", stamp)
	nameB := fmt.Sprintf("Petisco IT %d", stamp)

	var productA, productB int64
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, category, purchase_price_cents, sale_price_cents, stock_current, stock_min, created_at, updated_at)
		VALUES ($1, 'vinho', 4000, 9000, 10, 2, now(), now())
		RETURNING id
	`, nameA).Scan(&productA); err != nil {
		t.Fatalf("insert product A: %v", err)
	}
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (name, category, purchase_price_cents, sale_price_cents, stock_current, stock_min, created_at, updated_at)
		VALUES ($1, 'petisco', 1000, 2500, 5, 1, now(), now())
		RETURNING id
	`, nameB).Scan(&productB); err != nil {
		t.Fatalf("insert product B: %v", err)
	}
	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE product_id IN ($1, $2)`, productA, productB)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id IN ($1, $2)`, productA, productB)
	})

	stockOf := func(id int64) int {
		var stock int
		if err := s.db.QueryRowContext(ctx, `SELECT stock_current FROM products WHERE id = $1`, id).Scan(&stock); err != nil {
			t.Fatalf("read stock: %v", err)
		}
		return stock
	}

	sale, err := s.CreateSale(ctx, productA, 4)
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.TotalPriceCents != 4*9000 {
		t.Fatalf("unexpected total: %d", sale.TotalPriceCents)
	}
	if got := stockOf(productA); got != 6 {
		t.Fatalf("expected stock 6 after sale, got %d", got)
	}

	// Restoring the old quantity makes 10 feasible again.
	if _, err := s.UpdateSale(ctx, sale.ID, productA, 10); err != nil {
		t.Fatalf("update to full stock: %v", err)
	}
	if got := stockOf(productA); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}

	if _, err := s.UpdateSale(ctx, sale.ID, productA, 11); !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if got := stockOf(productA); got != 0 {
		t.Fatalf("rejected update mutated stock: %d", got)
	}

	// Switching products credits A fully and debits B.
	updated, err := s.UpdateSale(ctx, sale.ID, productB, 3)
	if err != nil {
		t.Fatalf("switch product: %v", err)
	}
	if updated.TotalPriceCents != 3*2500 {
		t.Fatalf("expected total from new product price, got %d", updated.TotalPriceCents)
	}
	if got := stockOf(productA); got != 10 {
		t.Fatalf("expected product A restored to 10, got %d", got)
	}
	if got := stockOf(productB); got != 2 {
		t.Fatalf("expected product B at 2, got %d", got)
	}

	// The product is referenced, so it cannot be deleted.
	if err := s.DeleteProduct(ctx, productB); !errors.Is(err, store.ErrProductInUse) {
		t.Fatalf("expected ErrProductInUse, got %v", err)
	}

	if err := s.DeleteSale(ctx, sale.ID); err != nil {
		t.Fatalf("delete sale: %v", err)
	}
	if got := stockOf(productB); got != 5 {
		t.Fatalf("expected product B restored to 5, got %d", got)
	}

	if err := s.DeleteSale(ctx, sale.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on double delete, got %v", err)
	}
}
