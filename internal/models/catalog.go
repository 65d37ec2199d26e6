package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ProductType string

const (
	ProductTypePersonalKey     ProductType = "personal_key"
	ProductTypePersonalAccount ProductType = "personal_account"
	ProductTypeSharedAccount   ProductType = "shared_account"
)

type CatalogStatus string

const (
	CatalogStatusActive     CatalogStatus = "active"
	CatalogStatusOutOfStock CatalogStatus = "out_of_stock"
	// CatalogStatusInactive is operator-set and sticky: stock derivation
	// never overwrites it.
	CatalogStatusInactive CatalogStatus = "inactive"
)

// Product aggregates its variants' derived stock.
type Product struct {
	bun.BaseModel `bun:"table:products"`

	ID        string        `bun:"id,pk" json:"id"`
	Name      string        `bun:"name,notnull" json:"name"`
	Status    CatalogStatus `bun:"status,notnull" json:"status"`
	StockQty  int           `bun:"stock_qty,notnull" json:"stock_qty"`
	CreatedAt time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt time.Time     `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}

// Variant is one sellable shape of a product. StockQty is derived and
// cached by the recalculator; it is never authored directly.
type Variant struct {
	bun.BaseModel `bun:"table:variants"`

	ID          string        `bun:"id,pk" json:"id"`
	ProductID   string        `bun:"product_id,notnull" json:"product_id"`
	Name        string        `bun:"name,notnull" json:"name"`
	ProductType ProductType   `bun:"product_type,notnull" json:"product_type"`
	Status      CatalogStatus `bun:"status,notnull" json:"status"`
	StockQty    int           `bun:"stock_qty,notnull" json:"stock_qty"`
	Price       float64       `bun:"price,notnull" json:"price"`
	CreatedAt   time.Time     `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time     `bun:"updated_at,nullzero" json:"updated_at,omitempty"`
}
