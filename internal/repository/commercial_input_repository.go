package repository

import (
	"context"
	"errors"

	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/period"
)

// ErrNotFound is returned when a keyed lookup matches no record.
var ErrNotFound = errors.New("record not found")

// CommercialInputRepository persists grid edits keyed by (product, customer, location, postdate).
type CommercialInputRepository interface {
	Upsert(ctx context.Context, key domain.UpsertKey, fields domain.UpsertFields) error
	FindByCustomerPeriod(ctx context.Context, customerID string, p period.Key) ([]domain.CommercialInput, error)
	Get(ctx context.Context, key domain.UpsertKey) (*domain.CommercialInput, error)
}
