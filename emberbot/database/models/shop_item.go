package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ShopItem is a purchasable catalog entry. Stock of -1 means unlimited.
type ShopItem struct {
	bun.BaseModel `bun:"table:shop_items,alias:si"`

	ID          string `bun:"id,pk"`
	Name        string `bun:"name,notnull"`
	Description string `bun:"description"`
	Price       int64  `bun:"price,notnull"`
	Currency    string `bun:"currency,notnull,default:'coins'"`
	Stock       int    `bun:"stock,notnull,default:-1"`

	// Eligibility
	MinLevel       int    `bun:"min_level,notnull,default:0"`
	MaxLevel       int    `bun:"max_level,notnull,default:0"`
	RequiredRoleID string `bun:"required_role_id,nullzero"`

	// Effect applied on purchase. A zero multiplier means the item grants no
	// boost and only lands in the inventory.
	BoostMultiplier float64 `bun:"boost_multiplier,notnull,default:0"`
	BoostHours      int     `bun:"boost_hours,notnull,default:0"`

	Purchases int `bun:"purchases,notnull,default:0"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// Unlimited reports whether the item ignores stock accounting.
func (i *ShopItem) Unlimited() bool {
	return i.Stock < 0
}
