package model

import "time"

// Dish представляет позицию меню (каталожный ресурс, кэшируется надолго)
type Dish struct {
	ID           int       `json:"id" validate:"required"`
	Name         string    `json:"name" validate:"required"`
	Description  string    `json:"description,omitempty"`
	Category     string    `json:"category" validate:"required"`
	Price        float64   `json:"price" validate:"required,gte=0"`
	Quantity     int       `json:"quantity"`
	Discount     float64   `json:"discount"`
	IsOffer      int       `json:"is_offer"`
	IsSpecial    int       `json:"is_special"`
	IsVegetarian int       `json:"is_vegetarian"`
	Visibility   int       `json:"visibility"`
	ImagePath    string    `json:"image_path,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Validate проверяет корректность структуры Dish на основе тегов validate
func (d *Dish) Validate() error {
	return validate.Struct(d)
}
