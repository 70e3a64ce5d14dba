package model

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// OrderStatus — статус заказа на стороне сервера
// жизненный цикл: pending → accepted → completed → payment_requested → paid,
// отмена (cancelled) возможна только из pending
type OrderStatus string

const (
	StatusPending          OrderStatus = "pending"
	StatusAccepted         OrderStatus = "accepted"
	StatusCompleted        OrderStatus = "completed"
	StatusPaymentRequested OrderStatus = "payment_requested"
	StatusPaid             OrderStatus = "paid"
	StatusCancelled        OrderStatus = "cancelled"
)

// statusOneOf используется в тегах validate и при проверке патчей
const statusOneOf = "oneof=pending accepted completed payment_requested paid cancelled"

// Order представляет заказ в том виде, в котором его отдаёт remote API
// теги validate используются для проверки корректности данных при получении
type Order struct {
	ID                    int         `json:"id" validate:"required"`
	UniqueID              string      `json:"unique_id" validate:"required"`
	TableNumber           int         `json:"table_number" validate:"required,gt=0"`
	Status                OrderStatus `json:"status" validate:"required,oneof=pending accepted completed payment_requested paid cancelled"`
	Items                 []OrderItem `json:"items" validate:"dive"`
	PersonID              int         `json:"person_id,omitempty"`
	PersonName            string      `json:"person_name,omitempty"`
	TotalAmount           float64     `json:"total_amount"`
	SubtotalAmount        float64     `json:"subtotal_amount"`
	LoyaltyDiscountAmount float64     `json:"loyalty_discount_amount"`
	CreatedAt             time.Time   `json:"created_at"`
	UpdatedAt             time.Time   `json:"updated_at"`
}

// OrderItem представляет одну позицию заказа
type OrderItem struct {
	ID       int    `json:"id"`
	OrderID  int    `json:"order_id"`
	DishID   int    `json:"dish_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
	Remarks  string `json:"remarks,omitempty"`
	Dish     *Dish  `json:"dish,omitempty"`
}

var validate = validator.New()

// Validate проверяет корректность структуры Order на основе тегов validate
func (o *Order) Validate() error {
	return validate.Struct(o)
}

// ValidStatus сообщает, входит ли значение в допустимый набор статусов
// используется при проверке оптимистичных патчей до обращения к сети
func ValidStatus(s string) bool {
	return validate.Var(s, statusOneOf) == nil
}
