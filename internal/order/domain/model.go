package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Draft is the store-side cart a payment is collected for.
type Draft struct {
	ID                snowflake.ID `json:"id" gorm:"primaryKey"`
	Scope             string       `json:"scope" gorm:"type:text;not null"`
	Currency          string       `json:"currency" gorm:"type:text;not null"`
	GrandTotal        int64        `json:"grand_total" gorm:"not null"`
	CustomerEmail     string       `json:"customer_email,omitempty" gorm:"type:text"`
	CustomerPhone     string       `json:"customer_phone,omitempty" gorm:"type:text"`
	ReservedReference string       `json:"reserved_reference,omitempty" gorm:"type:text"`
	IsActive          bool         `json:"is_active" gorm:"not null"`
	CreatedAt         time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time    `json:"updated_at" gorm:"not null"`
}

func (Draft) TableName() string { return "order_drafts" }

type OrderStatus string

const (
	OrderStatusPlaced   OrderStatus = "placed"
	OrderStatusCaptured OrderStatus = "captured"
	OrderStatusRefunded OrderStatus = "refunded"
	OrderStatusCanceled OrderStatus = "canceled"
)

type Order struct {
	ID             snowflake.ID `json:"id" gorm:"primaryKey"`
	DraftID        snowflake.ID `json:"draft_id" gorm:"not null"`
	Scope          string       `json:"scope" gorm:"type:text;not null"`
	Reference      string       `json:"reference" gorm:"type:text;not null;uniqueIndex"`
	Status         OrderStatus  `json:"status" gorm:"type:text;not null"`
	Currency       string       `json:"currency" gorm:"type:text;not null"`
	GrandTotal     int64        `json:"grand_total" gorm:"not null"`
	CapturedAmount int64        `json:"captured_amount" gorm:"not null"`
	RefundedAmount int64        `json:"refunded_amount" gorm:"not null"`
	PaymentClosed  bool         `json:"payment_closed" gorm:"not null"`
	TransactionID  string       `json:"transaction_id,omitempty" gorm:"type:text"`
	CreatedAt      time.Time    `json:"created_at" gorm:"not null"`
	UpdatedAt      time.Time    `json:"updated_at" gorm:"not null"`
}

func (Order) TableName() string { return "orders" }

type Repository interface {
	InsertDraft(ctx context.Context, db *gorm.DB, draft *Draft) error
	FindDraft(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Draft, error)
	UpdateDraft(ctx context.Context, db *gorm.DB, draft *Draft) error

	InsertOrder(ctx context.Context, db *gorm.DB, order *Order) (bool, error)
	FindOrderByReference(ctx context.Context, db *gorm.DB, reference string) (*Order, error)
	UpdatePayment(ctx context.Context, db *gorm.DB, reference string, update PaymentUpdate, at time.Time) (bool, error)
}

// PaymentUpdate holds the order columns a payment event changes. Nil fields are left alone.
type PaymentUpdate struct {
	Status        *OrderStatus
	AddCaptured   int64
	AddRefunded   int64
	PaymentClosed *bool
	TransactionID *string
}
