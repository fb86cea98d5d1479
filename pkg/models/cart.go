package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CartEntry is one line of a user's cart. Price, name and image are copied
// from the catalog when the line is first created and never re-read.
type CartEntry struct {
	ID        int64           `gorm:"primaryKey" json:"id,string"`
	UserID    int64           `gorm:"not null;uniqueIndex:uk_cart_line,priority:1" json:"userId,string"`
	ItemKind  ItemKind        `gorm:"type:varchar(8);not null;uniqueIndex:uk_cart_line,priority:2" json:"itemKind"`
	ItemID    int64           `gorm:"not null;uniqueIndex:uk_cart_line,priority:3" json:"itemId,string"`
	Flavor    string          `gorm:"type:varchar(50);not null;default:'';uniqueIndex:uk_cart_line,priority:4" json:"dishFlavor"`
	Quantity  int             `gorm:"column:number;not null" json:"number"`
	UnitPrice decimal.Decimal `gorm:"column:amount;type:decimal(10,2);not null" json:"amount"`
	Name      string          `gorm:"type:varchar(64)" json:"name"`
	Image     string          `gorm:"type:varchar(200)" json:"image"`
	CreatedAt time.Time       `json:"createTime"`
}

func (CartEntry) TableName() string {
	return "shopping_cart"
}
