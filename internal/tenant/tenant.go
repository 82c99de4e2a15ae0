// Package tenant provides multi-tenancy for the platform: the tenant
// model, its stores, and request-to-tenant resolution.
package tenant

import (
	"errors"
	"time"
)

// Errors
var (
	ErrTenantNotFound = errors.New("tenant: not found")
	ErrSlugTaken      = errors.New("tenant: slug already taken")
	ErrDomainTaken    = errors.New("tenant: domain already taken")
)

// RestaurantType identifies the service model of a restaurant.
type RestaurantType string

const (
	TypeALaCarte    RestaurantType = "alacarte"
	TypeFastFood    RestaurantType = "fastfood"
	TypeDelivery    RestaurantType = "delivery"
	TypePizzeria    RestaurantType = "pizzaria"
	TypeRodizio     RestaurantType = "rodizio"
	TypeSelfService RestaurantType = "selfservice"
	TypeBar         RestaurantType = "bar"
)

// ValidRestaurantType returns true if the type is recognised.
func ValidRestaurantType(t RestaurantType) bool {
	switch t {
	case TypeALaCarte, TypeFastFood, TypeDelivery, TypePizzeria, TypeRodizio, TypeSelfService, TypeBar:
		return true
	}
	return false
}

// Tenant represents one onboarded restaurant account, the unit of
// data isolation.
type Tenant struct {
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	Slug           string         `json:"slug"`
	Domain         string         `json:"domain,omitempty"` // optional custom domain
	RestaurantType RestaurantType `json:"restaurantType"`
	Email          string         `json:"email"`
	Phone          string         `json:"phone,omitempty"`
	ThemeColor     string         `json:"themeColor,omitempty"`
	Active         bool           `json:"active"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}
