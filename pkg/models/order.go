package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus int

const (
	OrderPendingPayment   OrderStatus = 1
	OrderAwaitingDelivery OrderStatus = 2
	OrderDelivering       OrderStatus = 3
	OrderCompleted        OrderStatus = 4
	OrderCancelled        OrderStatus = 5
)

// OrderHeader is immutable once written apart from Status.
type OrderHeader struct {
	ID            int64           `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	Number        string          `gorm:"type:varchar(50);not null" json:"number"`
	Status        OrderStatus     `gorm:"not null" json:"status"`
	UserID        int64           `gorm:"not null;index" json:"userId,string"`
	UserName      string          `gorm:"type:varchar(50)" json:"userName"`
	AddressBookID int64           `gorm:"not null" json:"addressBookId,string"`
	Address       string          `gorm:"type:varchar(255)" json:"address"`
	Consignee     string          `gorm:"type:varchar(50)" json:"consignee"`
	Phone         string          `gorm:"type:varchar(20)" json:"phone"`
	Remark        string          `gorm:"type:varchar(100)" json:"remark"`
	PayMethod     int             `gorm:"not null" json:"payMethod"`
	OrderTime     time.Time       `gorm:"not null;index" json:"orderTime"`
	CheckoutTime  time.Time       `json:"checkoutTime"`
	Amount        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`

	Lines []OrderLine `gorm:"foreignKey:OrderID" json:"orderDetails,omitempty"`
}

func (OrderHeader) TableName() string {
	return "orders"
}

// OrderLine is a priced snapshot of one cart entry at checkout.
type OrderLine struct {
	ID         int64           `gorm:"primaryKey" json:"id,string"`
	OrderID    int64           `gorm:"not null;index" json:"orderId,string"`
	ItemKind   ItemKind        `gorm:"type:varchar(8);not null" json:"itemKind"`
	ItemID     int64           `gorm:"not null" json:"itemId,string"`
	Flavor     string          `gorm:"type:varchar(50)" json:"dishFlavor"`
	Quantity   int             `gorm:"column:number;not null" json:"number"`
	UnitPrice  decimal.Decimal `gorm:"column:amount;type:decimal(10,2);not null" json:"amount"`
	LineAmount decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"lineAmount"`
	Name       string          `gorm:"type:varchar(64)" json:"name"`
	Image      string          `gorm:"type:varchar(200)" json:"image"`
}

func (OrderLine) TableName() string {
	return "order_detail"
}

// All lists every model for migrations.
func All() []interface{} {
	return []interface{}{
		&User{}, &AddressBook{},
		&Category{}, &Dish{}, &DishFlavor{}, &Combo{}, &ComboMember{},
		&CartEntry{},
		&OrderHeader{}, &OrderLine{},
	}
}
