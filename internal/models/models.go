package models

import (
	"time"

	"go-pos-register/internal/money"
)

// User - The cashier or admin operating the register
type User struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	Username     string `gorm:"uniqueIndex;size:50" json:"username"`
	PasswordHash string `json:"-"`    // Never return this in JSON
	Role         string `json:"role"` // 'admin', 'cashier'
	// FirstAdmin is 1 only on the bootstrap admin; the unique index allows
	// one such row no matter how many registrations race.
	FirstAdmin *int      `gorm:"uniqueIndex" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

// Category groups products; it cannot be deleted while products reference it.
type Category struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:100;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Product - The Inventory
type Product struct {
	ID                uint         `gorm:"primaryKey" json:"id"`
	SKU               string       `gorm:"uniqueIndex;size:64;not null" json:"sku"`
	Name              string       `gorm:"size:200;not null" json:"name"`
	CategoryID        *uint        `gorm:"index" json:"category_id"`
	Category          *Category    `gorm:"constraint:OnDelete:RESTRICT" json:"category,omitempty"`
	PriceCents        money.Cents  `gorm:"not null" json:"price_cents"`
	CostPriceCents    *money.Cents `json:"cost_price_cents"`
	StockQuantity     int          `gorm:"not null;default:0;check:stock_quantity >= 0" json:"stock_quantity"`
	LowStockThreshold int          `gorm:"not null;default:10" json:"low_stock_threshold"`
	IsActive          bool         `gorm:"not null" json:"is_active"`
	ImageURL          string       `gorm:"size:255" json:"image_url"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Stock movement reasons
const (
	MovementSale       = "sale"
	MovementAdjustment = "adjustment"
	MovementStockSet   = "stock_set"
)

// StockMovement - One change to a product's stock, newest entries form the stock card
type StockMovement struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	ProductID    uint      `gorm:"index;not null" json:"product_id"`
	Delta        int       `gorm:"not null" json:"delta"`
	BalanceAfter int       `gorm:"not null" json:"balance_after"`
	Reason       string    `gorm:"size:20;not null" json:"reason"`
	Reference    string    `gorm:"size:64" json:"reference"` // invoice number for sales
	Note         string    `gorm:"size:255" json:"note"`
	ActorID      uint      `json:"actor_id"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

type PaymentMethod string

const (
	PaymentCash  PaymentMethod = "cash"
	PaymentGCash PaymentMethod = "gcash"
)

// Valid reports whether the method is one the register accepts.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentGCash
}

const SaleStatusCompleted = "completed"

// Sale - The Transaction Header
// TotalAmountCents is always the sum of the item subtotals; the senior/PWD
// discount is kept apart so NetAmountCents is what the customer paid.
type Sale struct {
	ID               uint          `gorm:"primaryKey" json:"id"`
	InvoiceNumber    string        `gorm:"uniqueIndex;size:40;not null" json:"invoice_number"`
	CashierID        uint          `gorm:"index;not null" json:"cashier_id"`
	TransactionDate  time.Time     `json:"transaction_date"`
	TotalAmountCents money.Cents   `gorm:"not null" json:"total_amount_cents"`
	DiscountCents    money.Cents   `gorm:"not null;default:0" json:"discount_cents"`
	NetAmountCents   money.Cents   `gorm:"not null" json:"net_amount_cents"`
	PaymentMethod    PaymentMethod `gorm:"size:10;not null;index" json:"payment_method"`
	PaymentReference *string       `gorm:"size:100" json:"payment_reference"`
	CashGivenCents   *money.Cents  `json:"cash_given_cents"`
	ChangeCents      *money.Cents  `json:"change_cents"`
	IsSenior         bool          `gorm:"not null;default:false" json:"is_senior"`
	Status           string        `gorm:"size:20;not null" json:"status"`
	CreatedAt        time.Time     `gorm:"index" json:"created_at"`
	Items            []SaleItem    `gorm:"foreignKey:SaleID" json:"items"`
}

// SaleItem - One cart line, with product details snapshotted at sale time
type SaleItem struct {
	ID             uint         `gorm:"primaryKey" json:"id"`
	SaleID         uint         `gorm:"index;not null" json:"sale_id"`
	ProductID      uint         `gorm:"index;not null" json:"product_id"`
	ProductName    string       `gorm:"size:200" json:"product_name"`
	ProductSKU     string       `gorm:"size:64" json:"product_sku"`
	Quantity       int          `gorm:"not null" json:"quantity"`
	UnitPriceCents money.Cents  `gorm:"not null" json:"unit_price_cents"`
	CostPriceCents *money.Cents `json:"cost_price_cents"`
	SubtotalCents  money.Cents  `gorm:"not null" json:"subtotal_cents"`
}

const (
	ShiftOpen   = "open"
	ShiftClosed = "closed"
)

// Shift - A cashier's register session (Z-Read once closed)
// OpenSlot is 1 while the shift is open and NULL afterwards; its unique index
// lets the database itself refuse a second open shift.
type Shift struct {
	ID                uint         `gorm:"primaryKey" json:"id"`
	UserID            uint         `gorm:"index;not null" json:"user_id"`
	User              *User        `json:"user,omitempty"`
	StartTime         time.Time    `gorm:"not null" json:"start_time"`
	EndTime           *time.Time   `json:"end_time"`
	StartingCashCents money.Cents  `gorm:"not null" json:"starting_cash_cents"`
	CashSalesCents    *money.Cents `json:"cash_sales_cents"`
	ExpectedCashCents *money.Cents `json:"expected_cash_cents"`
	ActualCashCents   *money.Cents `json:"actual_cash_cents"`
	DifferenceCents   *money.Cents `json:"difference_cents"`
	Status            string       `gorm:"size:10;not null;index" json:"status"`
	OpenSlot          *int         `gorm:"uniqueIndex" json:"-"`
}

// RegisterLock - Singleton row locked by every shift start/close
type RegisterLock struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:50"`
}

// MainRegisterID is the id of the one RegisterLock row.
const MainRegisterID = 1

// CartLine - One line of a held cart snapshot
type CartLine struct {
	ProductID  uint        `json:"productId"`
	Quantity   int         `json:"quantity"`
	PriceCents money.Cents `json:"priceCents"`
	Name       string      `json:"name,omitempty"`
}

// HeldOrder - A parked cart; holding or recalling it never touches stock
type HeldOrder struct {
	ID               uint         `gorm:"primaryKey" json:"id"`
	ReferenceNote    string       `gorm:"size:255" json:"reference_note"`
	CartData         CartSnapshot `gorm:"type:text;not null" json:"cart_data"`
	TotalAmountCents money.Cents  `gorm:"not null" json:"total_amount_cents"`
	CreatedAt        time.Time    `gorm:"index" json:"created_at"`
}

// All lists every model for AutoMigrate.
func All() []any {
	return []any{
		&User{},
		&Category{},
		&Product{},
		&StockMovement{},
		&Sale{},
		&SaleItem{},
		&Shift{},
		&RegisterLock{},
		&HeldOrder{},
	}
}
