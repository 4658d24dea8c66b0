package models

import "time"

type User struct {
	BaseModel   `bson:",inline"`
	Username    string    `gorm:"type:varchar(64);not null"               json:"username"    bson:"username"`
	FirstName   string    `gorm:"type:varchar(64);not null"               json:"firstName"   bson:"firstName"`
	LastName    string    `gorm:"type:varchar(64);not null"               json:"lastName"    bson:"lastName"`
	Email       string    `gorm:"type:varchar(128);not null;uniqueIndex"  json:"email"       bson:"email"`
	Age         int       `gorm:"not null;index"                          json:"age"         bson:"age"`
	DateOfBirth time.Time `gorm:"not null;index"                          json:"dateOfBirth" bson:"dateOfBirth"`
	IsMarried   bool      `gorm:"not null"                                json:"isMarried"   bson:"isMarried"`
	Addresses   []Address `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"addresses" bson:"addresses"`
}

type Address struct {
	BaseModel    `bson:",inline"`
	UserID       uint      `gorm:"not null;index"            json:"-"            bson:"-"`
	Street       string    `gorm:"type:varchar(128);not null" json:"street"       bson:"street"`
	City         string    `gorm:"type:varchar(64);not null"  json:"city"         bson:"city"`
	Country      string    `gorm:"type:varchar(64);not null;index" json:"country" bson:"country"`
	PurchaseDate time.Time `gorm:"not null;index"            json:"purchaseDate" bson:"purchaseDate"`
}

// UserPatch is the partial update applied by bulk update. Nil fields are left
// untouched.
type UserPatch struct {
	IsMarried *bool `json:"isMarried,omitempty"`
}

func (p UserPatch) IsEmpty() bool {
	return p.IsMarried == nil
}

// MarriedPatch is the only patch the benchmark applies.
func MarriedPatch() UserPatch {
	married := true
	return UserPatch{IsMarried: &married}
}

// CountryAggregate is one row of the per-country aggregation. TotalUsers counts
// addresses, so a user with two addresses in a country contributes two.
type CountryAggregate struct {
	Country    string  `gorm:"column:country"     json:"country"    bson:"_id"`
	TotalUsers int64   `gorm:"column:total_users" json:"totalUsers" bson:"totalUsers"`
	AverageAge float64 `gorm:"column:average_age" json:"averageAge" bson:"averageAge"`
}

type InsertUsersRequest struct {
	NumberOfUsers *int `json:"numberOfUsers"`
	StartIndex    *int `json:"startIndex"`
}

type RandomUsersRequest struct {
	NumberOfUsers *int   `json:"numberOfUsers"`
	StartIndex    *int   `json:"startIndex"`
	Seed          *int64 `json:"seed"`
}
