package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID        string
	Name      string
	Slug      string
	Price     decimal.Decimal
	Stock     int
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p Product) InStock() bool { return p.Stock > 0 }

type Order struct {
	ID        string
	UserID    string
	Number    string // human-readable order identifier, minted at checkout
	Status    Status // see status.go
	Total     decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

type OrderItem struct {
	ID        string
	OrderID   string
	ProductID string
	Qty       int
	Price     decimal.Decimal // unit price snapshot at add-time
}

type Payment struct {
	ID        string
	OrderID   string
	Status    PaymentStatus
	CreatedAt time.Time
}

type Profile struct {
	UserID  string
	Balance decimal.Decimal
}
