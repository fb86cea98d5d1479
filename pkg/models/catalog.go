package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ItemKind tells dishes and combo meals apart wherever both can appear.
type ItemKind string

const (
	KindDish  ItemKind = "dish"
	KindCombo ItemKind = "combo"
)

func (k ItemKind) Valid() bool {
	return k == KindDish || k == KindCombo
}

func ParseItemKind(s string) (ItemKind, error) {
	k := ItemKind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown item kind %q", s)
	}
	return k, nil
}

// SaleStatus is the customer visibility toggle of a dish or combo.
type SaleStatus int

const (
	OffSale SaleStatus = 0
	OnSale  SaleStatus = 1
)

func (s SaleStatus) Valid() bool {
	return s == OffSale || s == OnSale
}

func (s SaleStatus) String() string {
	if s == OnSale {
		return "on-sale"
	}
	return "off-sale"
}

type Category struct {
	ID        int64     `gorm:"primaryKey" json:"id,string"`
	Type      int       `gorm:"not null" json:"type"`
	Name      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"name"`
	Sort      int       `gorm:"not null" json:"sort"`
	UpdatedAt time.Time `json:"updateTime"`
}

func (Category) TableName() string {
	return "category"
}

type Dish struct {
	ID          int64           `gorm:"primaryKey" json:"id,string"`
	Name        string          `gorm:"type:varchar(64);not null" json:"name"`
	CategoryID  int64           `gorm:"not null;index" json:"categoryId,string"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Image       string          `gorm:"type:varchar(200)" json:"image"`
	Description string          `gorm:"type:varchar(400)" json:"description"`
	Status      SaleStatus      `gorm:"not null" json:"status"`
	Sort        int             `gorm:"not null" json:"sort"`
	Deleted     bool            `gorm:"not null;index" json:"-"`
	CreatedAt   time.Time       `json:"createTime"`
	UpdatedAt   time.Time       `json:"updateTime"`

	Flavors []DishFlavor `gorm:"foreignKey:DishID" json:"flavors,omitempty"`
}

func (Dish) TableName() string {
	return "dish"
}

// DishFlavor is one flavor choice of a dish, e.g. name "spice", value ["mild","hot"].
type DishFlavor struct {
	ID      int64  `gorm:"primaryKey" json:"id,string"`
	DishID  int64  `gorm:"not null;index" json:"dishId,string"`
	Name    string `gorm:"type:varchar(64)" json:"name"`
	Value   string `gorm:"type:varchar(500)" json:"value"`
	Deleted bool   `gorm:"not null" json:"-"`
}

func (DishFlavor) TableName() string {
	return "dish_flavor"
}

type Combo struct {
	ID          int64           `gorm:"primaryKey" json:"id,string"`
	Name        string          `gorm:"type:varchar(64);not null" json:"name"`
	CategoryID  int64           `gorm:"not null;index" json:"categoryId,string"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Image       string          `gorm:"type:varchar(200)" json:"image"`
	Description string          `gorm:"type:varchar(400)" json:"description"`
	Status      SaleStatus      `gorm:"not null" json:"status"`
	Sort        int             `gorm:"not null" json:"sort"`
	Deleted     bool            `gorm:"not null;index" json:"-"`
	CreatedAt   time.Time       `json:"createTime"`
	UpdatedAt   time.Time       `json:"updateTime"`

	Members []ComboMember `gorm:"foreignKey:ComboID" json:"setmealDishes,omitempty"`
}

func (Combo) TableName() string {
	return "setmeal"
}

// ComboMember links a combo to one of its dishes.
type ComboMember struct {
	ID      int64           `gorm:"primaryKey" json:"id,string"`
	ComboID int64           `gorm:"column:setmeal_id;not null;index" json:"setmealId,string"`
	DishID  int64           `gorm:"not null;index" json:"dishId,string"`
	Name    string          `gorm:"type:varchar(64)" json:"name"`
	Price   decimal.Decimal `gorm:"type:decimal(10,2)" json:"price"`
	Copies  int             `gorm:"not null" json:"copies"`
	Sort    int             `gorm:"not null" json:"sort"`
	Deleted bool            `gorm:"not null" json:"-"`
}

func (ComboMember) TableName() string {
	return "setmeal_dish"
}
