package domain

import "time"

const (
	RoleManager   = "MANAGER"
	RoleAttendant = "ATTENDANT"
)

// ValidRole reports whether role is one of the two roles the system knows.
func ValidRole(role string) bool {
	return role == RoleManager || role == RoleAttendant
}

type Product struct {
	ID                 int64     `json:"id"`
	Name               string    `json:"name"`
	Category           string    `json:"category,omitempty"`
	PurchasePriceCents int64     `json:"purchase_price_cents"`
	SalePriceCents     int64     `json:"sale_price_cents"`
	StockCurrent       int       `json:"stock_current"`
	StockMin           int       `json:"stock_min"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	Name               string `json:"name"`
	Category           string `json:"category"`
	PurchasePriceCents int64  `json:"purchase_price_cents"`
	SalePriceCents     int64  `json:"sale_price_cents"`
	StockCurrent       int    `json:"stock_current"`
	StockMin           int    `json:"stock_min"`
}

type ProductUpdateRequest struct {
	Name               *string `json:"name,omitempty"`
	Category           *string `json:"category,omitempty"`
	PurchasePriceCents *int64  `json:"purchase_price_cents,omitempty"`
	SalePriceCents     *int64  `json:"sale_price_cents,omitempty"`
	StockCurrent       *int    `json:"stock_current,omitempty"`
	StockMin           *int    `json:"stock_min,omitempty"`
}

type Sale struct {
	ID              int64     `json:"id"`
	ProductID       int64     `json:"product_id"`
	ProductName     string    `json:"product_name,omitempty"`
	Quantity        int       `json:"quantity"`
	UnitPriceCents  int64     `json:"unit_price_cents"`
	TotalPriceCents int64     `json:"total_price_cents"`
	CreatedAt       time.Time `json:"created_at"`
}

type SaleCreateRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type SaleUpdateRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// User is the persistence model; the password hash never leaves the backend.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
}

type UserView struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (u User) View() UserView {
	return UserView{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string   `json:"token"`
	User      UserView `json:"user"`
	ExpiresAt string   `json:"expires_at"`
}

// Actor is the authenticated caller attached to the request context.
type Actor struct {
	UserID int64
	Email  string
	Role   string
}

type TopProduct struct {
	ProductID     int64  `json:"product_id"`
	Name          string `json:"name"`
	Category      string `json:"category,omitempty"`
	TotalQuantity int    `json:"total_quantity"`
	RevenueCents  int64  `json:"total_revenue_cents"`
}

type LastSale struct {
	ID              int64     `json:"id"`
	ProductID       int64     `json:"product_id"`
	ProductName     string    `json:"product"`
	Quantity        int       `json:"quantity"`
	TotalPriceCents int64     `json:"total_price_cents"`
	CreatedAt       time.Time `json:"created_at"`
	CreatedAtLocal  string    `json:"created_at_local"`
}

type FinancialLine struct {
	ProductID     int64   `json:"product_id"`
	Name          string  `json:"name"`
	Category      string  `json:"category,omitempty"`
	TotalQuantity int     `json:"total_quantity"`
	RevenueCents  int64   `json:"total_revenue_cents"`
	CostCents     int64   `json:"total_cost_cents"`
	ProfitCents   int64   `json:"profit_cents"`
	MarginPercent float64 `json:"margin_percent"`
}

type FinancialTotals struct {
	RevenueCents int64 `json:"total_revenue_cents"`
	CostCents    int64 `json:"total_cost_cents"`
	ProfitCents  int64 `json:"total_profit_cents"`
}

type FinancialReport struct {
	Items  []FinancialLine `json:"items"`
	Totals FinancialTotals `json:"totals"`
}

// FinancialAggregate is the raw per-product aggregation a store returns;
// profit and margin are derived in the service.
type FinancialAggregate struct {
	ProductID     int64
	Name          string
	Category      string
	TotalQuantity int
	RevenueCents  int64
	CostCents     int64
}
