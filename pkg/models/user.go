package models

import (
	"strings"
	"time"
)

type User struct {
	ID        int64     `gorm:"primaryKey" json:"id,string"`
	Name      string    `gorm:"type:varchar(50)" json:"name"`
	Phone     string    `gorm:"type:varchar(20);index" json:"phone"`
	Status    int       `gorm:"not null" json:"status"`
	CreatedAt time.Time `json:"createTime"`
}

func (User) TableName() string {
	return "user"
}

// AddressBook is a delivery address owned by one user.
type AddressBook struct {
	ID           int64     `gorm:"primaryKey" json:"id,string"`
	UserID       int64     `gorm:"not null;index" json:"userId,string"`
	Consignee    string    `gorm:"type:varchar(50);not null" json:"consignee"`
	Phone        string    `gorm:"type:varchar(20);not null" json:"phone"`
	ProvinceName string    `gorm:"type:varchar(32)" json:"provinceName"`
	CityName     string    `gorm:"type:varchar(32)" json:"cityName"`
	DistrictName string    `gorm:"type:varchar(32)" json:"districtName"`
	Detail       string    `gorm:"type:varchar(200)" json:"detail"`
	Label        string    `gorm:"type:varchar(100)" json:"label"`
	IsDefault    bool      `gorm:"not null" json:"isDefault"`
	UpdatedAt    time.Time `json:"updateTime"`
}

func (AddressBook) TableName() string {
	return "address_book"
}

// Flatten joins the address parts into the single line stored on orders.
func (a *AddressBook) Flatten() string {
	return strings.Join([]string{a.ProvinceName, a.CityName, a.DistrictName, a.Detail}, "")
}
