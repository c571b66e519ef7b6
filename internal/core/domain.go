package core

import (
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Collection names used by the record store.
const (
	CollectionProducts  = "products"
	CollectionCustomers = "customers"
	CollectionSales     = "sales"
	CollectionSnapshots = "report_snapshots"
)

const maxNameLength = 200

type (
	// Money is the canonical monetary value. Prices are normalized into it
	// once, when a record is read from the store.
	Money struct {
		Amount decimal.Decimal
	}

	Product struct {
		ID    string
		Name  string
		Price Money
		// PriceValid is false when the stored price could not be parsed.
		// Price is zero in that case and the product contributes no money.
		PriceValid bool
		RawPrice   string
		Category   string
		Brand      string
		Stock      int
	}

	Customer struct {
		ID      string
		Name    string
		Email   string
		Phone   string
		Address string
	}

	Sale struct {
		ID         string
		ProductID  string
		CustomerID string
		Amount     int // units purchased
		Date       time.Time
		// UnitPrice is the product price recorded when the sale was created.
		// Nil for sales written before prices were snapshotted.
		UnitPrice *Money
	}
)

var (
	ErrInvalidPrice      = errors.New("invalid price")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidStock      = errors.New("invalid stock")
	ErrEmptyName         = errors.New("empty name")
	ErrNameTooLong       = errors.New("name too long (max 200 characters)")
	ErrInvalidEmail      = errors.New("invalid email")
	ErrMissingProductID  = errors.New("missing product id")
	ErrMissingCustomerID = errors.New("missing customer id")
	ErrZeroDate          = errors.New("date cannot be zero")
)

// IsValidationError reports whether err comes from one of the Validate methods.
func IsValidationError(err error) bool {
	for _, target := range []error{
		ErrInvalidPrice, ErrInvalidAmount, ErrInvalidStock, ErrEmptyName, ErrNameTooLong,
		ErrInvalidEmail, ErrMissingProductID, ErrMissingCustomerID, ErrZeroDate,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func validateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	if len(name) > maxNameLength {
		return ErrNameTooLong
	}
	return nil
}

func (p Product) Validate() error {
	if err := validateName(p.Name); err != nil {
		return err
	}
	if !p.PriceValid || p.Price.IsNegative() {
		return ErrInvalidPrice
	}
	if p.Stock < 0 {
		return ErrInvalidStock
	}
	return nil
}

func (c Customer) Validate() error {
	if err := validateName(c.Name); err != nil {
		return err
	}
	email := strings.TrimSpace(c.Email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}

func (s Sale) Validate() error {
	if strings.TrimSpace(s.ProductID) == "" {
		return ErrMissingProductID
	}
	if strings.TrimSpace(s.CustomerID) == "" {
		return ErrMissingCustomerID
	}
	if s.Amount <= 0 {
		return ErrInvalidAmount
	}
	if s.Date.IsZero() {
		return ErrZeroDate
	}
	if s.UnitPrice != nil && s.UnitPrice.IsNegative() {
		return ErrInvalidPrice
	}
	return nil
}
