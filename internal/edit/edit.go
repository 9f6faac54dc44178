// Package edit turns a single-cell edit of the collaboration grid into per-entity commercial
// inputs, persists them and only then applies them to the matrix.
package edit

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/matrix"
	"github.com/AdvantusAI/m8-collab/internal/period"
)

var (
	ErrNoEntities        = errors.New("edit targets no entities")
	ErrEntityNotFound    = errors.New("entity not found in matrix")
	ErrPeriodOutOfWindow = errors.New("period outside matrix window")
	ErrInvalidPeriod     = errors.New("invalid period key")
)

// Persister is the durable store for commercial inputs.
type Persister interface {
	// Upsert inserts or updates the record for key. Replaying the same call must not create a
	// second record.
	Upsert(ctx context.Context, key domain.UpsertKey, fields domain.UpsertFields) error
	// FindByCustomerPeriod returns persisted inputs of a customer dated inside period p.
	FindByCustomerPeriod(ctx context.Context, customerID string, p period.Key) ([]domain.CommercialInput, error)
}

// Target selects the row being edited: one entity, or the "all entities" pseudo-row.
type Target struct {
	All    bool             `json:"all"`
	Entity domain.EntityKey `json:"entity"`
}

// Request is one cell edit.
type Request struct {
	Target Target
	Period period.Key
	Value  float64
	Notes  *string
}

// Status of one entity's part of an edit.
type Status string

const (
	StatusApplied  Status = "applied"
	StatusRejected Status = "rejected"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
)

// Mutation is the planned change for one entity. Key is only meaningful when KeyErr is nil.
// Skip marks an aggregate share of zero for an entity with no record in the period; nothing is
// written for it.
type Mutation struct {
	Entity   domain.EntityKey
	Previous float64
	Value    float64
	Key      domain.UpsertKey
	KeyErr   error
	Skip     bool
}

// Plan is a computed but not yet persisted edit.
type Plan struct {
	BatchID   string
	Period    period.Key
	Value     float64
	Notes     *string
	Mutations []Mutation
}

// Outcome reports what happened to one entity.
type Outcome struct {
	Entity   domain.EntityKey  `json:"entity"`
	Previous float64           `json:"previous"`
	Value    float64           `json:"value"`
	Key      *domain.UpsertKey `json:"key,omitempty"`
	Status   Status            `json:"status"`
	Message  string            `json:"error,omitempty"`
	Err      error             `json:"-"`
}

func (o *Outcome) fail(status Status, err error) {
	o.Status = status
	o.Err = err
	o.Message = err.Error()
}

// Result is the per-entity outcome of a committed plan.
type Result struct {
	BatchID  string     `json:"batch_id"`
	Period   period.Key `json:"period"`
	Outcomes []Outcome  `json:"outcomes"`
	Applied  int        `json:"applied"`
	Rejected int        `json:"rejected"`
	Failed   int        `json:"failed"`
	Skipped  int        `json:"skipped"`
}

// AnyApplied reports whether at least one entity was persisted and applied.
func (r *Result) AnyApplied() bool { return r.Applied > 0 }

// Complete reports whether every entity was applied or skipped.
func (r *Result) Complete() bool { return r.Rejected == 0 && r.Failed == 0 }

// KeyError is returned for an entity whose upsert key could not be fully resolved.
type KeyError struct {
	Entity  domain.EntityKey
	Period  period.Key
	Missing []string
}

func (e *KeyError) Error() string {
	return fmt.Sprintf("unresolved upsert key for %s %s: missing %s", e.Entity, e.Period, strings.Join(e.Missing, ", "))
}

// Engine plans and commits edits against a Persister.
type Engine struct {
	store    Persister
	validate *validator.Validate
	newID    func() string
}

// NewEngine creates an engine writing to store.
func NewEngine(store Persister) *Engine {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	return &Engine{store: store, validate: v, newID: uuid.NewString}
}

// ApplyEdit plans req and commits it. Entities that fail are listed in the result; the matrix only
// changes for entities whose write was confirmed.
func (eng *Engine) ApplyEdit(ctx context.Context, m *matrix.Matrix, req Request) (*Result, error) {
	plan, err := eng.Plan(ctx, m, req)
	if err != nil {
		return nil, err
	}
	return eng.Commit(ctx, m, plan), nil
}

// Plan computes the new kam_adjustment for every targeted entity and resolves its upsert key.
// It does not modify m.
func (eng *Engine) Plan(ctx context.Context, m *matrix.Matrix, req Request) (*Plan, error) {
	if _, _, err := period.ParseKey(req.Period); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPeriod, err)
	}
	if !m.Window().Contains(req.Period) {
		return nil, fmt.Errorf("%w: %s not in %s", ErrPeriodOutOfWindow, req.Period, m.Window())
	}

	entities, err := targets(m, req.Target)
	if err != nil {
		return nil, err
	}

	values := []float64{req.Value}
	if req.Target.All {
		values = FairShares(effectiveValues(entities, req.Period), req.Value)
	}

	plan := &Plan{
		BatchID:   eng.newID(),
		Period:    req.Period,
		Value:     req.Value,
		Notes:     req.Notes,
		Mutations: make([]Mutation, 0, len(entities)),
	}
	for i, e := range entities {
		if req.Target.All && values[i] == 0 {
			if _, ok := e.Record(req.Period); !ok {
				plan.Mutations = append(plan.Mutations, Mutation{Entity: e.Key, Skip: true})
				continue
			}
		}
		key, keyErr := eng.resolveKey(ctx, e, req.Period)
		plan.Mutations = append(plan.Mutations, Mutation{
			Entity:   e.Key,
			Previous: e.Value(req.Period, domain.MetricKAMAdjustment),
			Value:    values[i],
			Key:      key,
			KeyErr:   keyErr,
		})
	}
	return plan, nil
}

// Commit sends one upsert per resolvable mutation and applies each confirmed value to m.
// There is no retry and no rollback of siblings.
func (eng *Engine) Commit(ctx context.Context, m *matrix.Matrix, plan *Plan) *Result {
	res := &Result{BatchID: plan.BatchID, Period: plan.Period, Outcomes: make([]Outcome, 0, len(plan.Mutations))}

	for _, mut := range plan.Mutations {
		out := Outcome{Entity: mut.Entity, Previous: mut.Previous, Value: mut.Value}
		if mut.Skip {
			out.Status = StatusSkipped
			res.Skipped++
			res.Outcomes = append(res.Outcomes, out)
			continue
		}
		if mut.KeyErr != nil {
			out.fail(StatusRejected, mut.KeyErr)
			res.Rejected++
			res.Outcomes = append(res.Outcomes, out)
			continue
		}
		key := mut.Key
		out.Key = &key

		err := ctx.Err()
		if err == nil {
			err = eng.store.Upsert(ctx, key, domain.UpsertFields{
				CommercialInput: mut.Value,
				Notes:           plan.Notes,
				BatchID:         plan.BatchID,
			})
		}
		if err != nil {
			out.fail(StatusFailed, fmt.Errorf("upsert commercial input %s %s: %w", mut.Entity, plan.Period, err))
			res.Failed++
			log.Error().Err(err).Str("batch_id", plan.BatchID).Str("entity", mut.Entity.String()).
				Str("period", string(plan.Period)).Msg("edit: upsert failed")
			res.Outcomes = append(res.Outcomes, out)
			continue
		}

		m.SetCommercialInput(mut.Entity, plan.Period, mut.Value)
		out.Status = StatusApplied
		res.Applied++
		res.Outcomes = append(res.Outcomes, out)
	}

	log.Info().Str("batch_id", plan.BatchID).Str("period", string(plan.Period)).
		Int("applied", res.Applied).Int("rejected", res.Rejected).Int("failed", res.Failed).Int("skipped", res.Skipped).
		Msg("edit: batch committed")
	return res
}

func targets(m *matrix.Matrix, t Target) ([]*matrix.Entity, error) {
	if t.All {
		entities := m.Entities()
		if len(entities) == 0 {
			return nil, ErrNoEntities
		}
		return entities, nil
	}
	key := domain.NewEntityKey(t.Entity.CustomerID, t.Entity.ProductID)
	e, ok := m.Entity(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, key)
	}
	return []*matrix.Entity{e}, nil
}

func effectiveValues(entities []*matrix.Entity, k period.Key) []float64 {
	out := make([]float64, len(entities))
	for i, e := range entities {
		out[i] = e.Value(k, domain.MetricEffectiveForecast)
	}
	return out
}

// FairShares splits total across weights proportionally, or evenly when the weights do not sum
// to a positive number. Every share is rounded to the nearest integer.
func FairShares(weights []float64, total float64) []float64 {
	shares := make([]float64, len(weights))
	if len(weights) == 0 {
		return shares
	}

	v := decimal.NewFromFloat(total)
	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(decimal.NewFromFloat(w))
	}

	even := v.Div(decimal.NewFromInt(int64(len(weights))))
	for i, w := range weights {
		share := even
		if sum.IsPositive() {
			share = decimal.NewFromFloat(w).Div(sum).Mul(v)
		}
		shares[i] = share.Round(0).InexactFloat64()
	}
	return shares
}

// resolveKey builds the upsert key from the entity, falling back to already persisted inputs of
// the same customer and period for whatever the entity lacks.
func (eng *Engine) resolveKey(ctx context.Context, e *matrix.Entity, k period.Key) (domain.UpsertKey, error) {
	key := domain.UpsertKey{
		CustomerID: e.Key.CustomerID,
		LocationID: e.LocationID,
	}
	if e.Key.HasProduct() {
		key.ProductID = e.Key.ProductID
	}
	if date, ok := e.SourceDate(k); ok {
		key.SourceDate = date
	}
	if loc, ok := e.SourceLocation(k); ok {
		key.LocationID = loc
	}

	if !complete(key) && key.CustomerID != "" {
		persisted, err := eng.store.FindByCustomerPeriod(ctx, key.CustomerID, k)
		if err != nil {
			return key, fmt.Errorf("lookup persisted inputs for %s %s: %w", e.Key, k, err)
		}
		if match, ok := pick(persisted, key.ProductID); ok {
			if key.ProductID == "" {
				key.ProductID = match.ProductID
			}
			if key.LocationID == "" {
				key.LocationID = match.LocationID
			}
			if key.SourceDate == "" {
				key.SourceDate = match.SourceDate
			}
		}
	}

	if err := eng.validate.Struct(key); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			missing := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				missing = append(missing, fe.Field())
			}
			return key, &KeyError{Entity: e.Key, Period: k, Missing: missing}
		}
		return key, err
	}
	return key, nil
}

func complete(k domain.UpsertKey) bool {
	return k.CustomerID != "" && k.ProductID != "" && k.LocationID != "" && k.SourceDate != ""
}

// pick prefers a record of the same product; an entity without a product takes the first one.
func pick(records []domain.CommercialInput, productID string) (domain.CommercialInput, bool) {
	for _, r := range records {
		if productID != "" && r.ProductID == productID {
			return r, true
		}
	}
	if productID == "" && len(records) > 0 {
		return records[0], true
	}
	return domain.CommercialInput{}, false
}
