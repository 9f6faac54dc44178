package domain

import (
	"strings"
	"time"
)

// NoProduct is the product ID assigned to rows that arrive without one.
const NoProduct = "NO_PRODUCT"

// EntityKey identifies one customer/product pair in the period matrix.
type EntityKey struct {
	CustomerID string `json:"customer_id"`
	ProductID  string `json:"product_id"`
}

// NewEntityKey trims both IDs and substitutes NoProduct for a blank product.
func NewEntityKey(customerID, productID string) EntityKey {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		productID = NoProduct
	}
	return EntityKey{CustomerID: strings.TrimSpace(customerID), ProductID: productID}
}

func (k EntityKey) String() string {
	return k.CustomerID + "/" + k.ProductID
}

// HasProduct reports whether the key carries a real product ID.
func (k EntityKey) HasProduct() bool {
	return k.ProductID != "" && k.ProductID != NoProduct
}

// Filter is the resolved leaf-level selection coming from the filter UI.
// Empty ID sets mean "no restriction".
type Filter struct {
	CustomerIDs []string   `json:"customer_ids"`
	ProductIDs  []string   `json:"product_ids"`
	LocationIDs []string   `json:"location_ids"`
	StartDate   *time.Time `json:"start_date,omitempty"`
	EndDate     *time.Time `json:"end_date,omitempty"`
}

// Matches reports whether a row's IDs fall inside the filter's ID sets.
func (f Filter) Matches(customerID, productID, locationID string) bool {
	return containsOrEmpty(f.CustomerIDs, customerID) &&
		containsOrEmpty(f.ProductIDs, productID) &&
		containsOrEmpty(f.LocationIDs, locationID)
}

// AcceptsDate reports whether t is inside the filter's date range. Both bounds are inclusive and
// compared at day granularity.
func (f Filter) AcceptsDate(t time.Time) bool {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	if f.StartDate != nil {
		start := time.Date(f.StartDate.Year(), f.StartDate.Month(), f.StartDate.Day(), 0, 0, 0, 0, time.UTC)
		if day.Before(start) {
			return false
		}
	}
	if f.EndDate != nil {
		end := time.Date(f.EndDate.Year(), f.EndDate.Month(), f.EndDate.Day(), 0, 0, 0, 0, time.UTC)
		if day.After(end) {
			return false
		}
	}
	return true
}

func containsOrEmpty(values []string, v string) bool {
	if len(values) == 0 {
		return true
	}
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// ForecastRow is one record of the forecast/collaboration feed.
type ForecastRow struct {
	ID                  string  `json:"id" db:"id"`
	CustomerID          string  `json:"customer_id" db:"customer_id"`
	ProductID           string  `json:"product_id" db:"product_id"`
	LocationID          string  `json:"location_id" db:"location_id"`
	PostDate            string  `json:"postdate" db:"postdate"`
	LastYear            float64 `json:"last_year" db:"last_year"`
	StatisticalForecast float64 `json:"statistical_forecast" db:"statistical_forecast"`
	ApprovedOverride    float64 `json:"approved_override" db:"approved_override"`
	SalesManagerView    float64 `json:"sales_manager_view" db:"sales_manager_view"`
}

// SellInRow is one record of the sell-in history feed.
type SellInRow struct {
	ID         string  `json:"id" db:"id"`
	CustomerID string  `json:"customer_id" db:"customer_id"`
	ProductID  string  `json:"product_id" db:"product_id"`
	LocationID string  `json:"location_id" db:"location_id"`
	PostDate   string  `json:"postdate" db:"postdate"`
	Quantity   float64 `json:"quantity" db:"quantity"`
}

// SellOutRow is one record of the sell-out feed.
type SellOutRow struct {
	ID         string  `json:"id" db:"id"`
	CustomerID string  `json:"customer_id" db:"customer_id"`
	ProductID  string  `json:"product_id" db:"product_id"`
	LocationID string  `json:"location_id" db:"location_id"`
	PostDate   string  `json:"postdate" db:"postdate"`
	PriorYear  float64 `json:"prior_year" db:"prior_year"`
	Actual     float64 `json:"actual" db:"actual"`
}

// InventoryRow is one record of the inventory position feed.
type InventoryRow struct {
	ID         string  `json:"id" db:"id"`
	CustomerID string  `json:"customer_id" db:"customer_id"`
	ProductID  string  `json:"product_id" db:"product_id"`
	LocationID string  `json:"location_id" db:"location_id"`
	PostDate   string  `json:"postdate" db:"postdate"`
	OnHand     float64 `json:"on_hand" db:"on_hand"`
}

// KAMRow is one record of the KAM adjustment and budget feed. Nil values mean the row does not
// carry that field.
type KAMRow struct {
	ID            string   `json:"id" db:"id"`
	CustomerID    string   `json:"customer_id" db:"customer_id"`
	ProductID     string   `json:"product_id" db:"product_id"`
	LocationID    string   `json:"location_id" db:"location_id"`
	PostDate      string   `json:"postdate" db:"postdate"`
	KAMAdjustment *float64 `json:"kam_adjustment" db:"commercial_input"`
	Budget        *float64 `json:"budget" db:"budget"`
}

// UnitMultipliers convert case-denominated quantities into the other unit systems.
type UnitMultipliers struct {
	CaseEquivalent float64 `json:"case_equivalent" db:"case_equivalent"`
	Volume         float64 `json:"volume" db:"volume"`
	Weight         float64 `json:"weight" db:"weight"`
}

// ProductAttributes carries the per-product unit multipliers.
type ProductAttributes struct {
	ProductID string `json:"product_id" db:"product_id"`
	UnitMultipliers
}

// Sources bundles the five feeds plus product attributes for one build.
type Sources struct {
	Forecast  []ForecastRow
	SellIn    []SellInRow
	SellOut   []SellOutRow
	Inventory []InventoryRow
	KAM       []KAMRow
	Products  []ProductAttributes
}

// Empty reports whether none of the feeds returned a row.
func (s Sources) Empty() bool {
	return len(s.Forecast) == 0 && len(s.SellIn) == 0 && len(s.SellOut) == 0 &&
		len(s.Inventory) == 0 && len(s.KAM) == 0
}

// UpsertKey is the composite natural key of a persisted commercial input.
type UpsertKey struct {
	ProductID  string `json:"product_id" db:"product_id" validate:"required,ne=NO_PRODUCT"`
	CustomerID string `json:"customer_id" db:"customer_id" validate:"required"`
	LocationID string `json:"location_id" db:"location_id" validate:"required"`
	SourceDate string `json:"source_date" db:"postdate" validate:"required"`
}

// UpsertFields are the values written for an UpsertKey.
type UpsertFields struct {
	CommercialInput float64 `json:"commercial_input" db:"commercial_input"`
	Notes           *string `json:"notes,omitempty" db:"notes"`
	BatchID         string  `json:"batch_id,omitempty" db:"batch_id"`
}

// CommercialInput is a persisted commercial input record.
type CommercialInput struct {
	UpsertKey
	UpsertFields
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
