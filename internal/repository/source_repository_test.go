package repository

import (
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/AdvantusAI/m8-collab/internal/domain"
	"github.com/AdvantusAI/m8-collab/internal/period"
)

func TestSourceConditions(t *testing.T) {
	where, args := sourceConditions(SourceQuery{
		Filter: domain.Filter{CustomerIDs: []string{"C1", "C2"}, LocationIDs: []string{"L1"}},
		Window: period.DefaultWindow(2025),
	})

	assert.Contains(t, where, "customer_id = ANY($1::text[])")
	assert.Contains(t, where, "location_id = ANY($2::text[])")
	assert.Contains(t, where, "LEFT(postdate, 10) >= $3")
	assert.Contains(t, where, "LEFT(postdate, 10) < $4")
	assert.NotContains(t, where, "product_id")
	assert.Equal(t, []interface{}{
		pq.Array([]string{"C1", "C2"}),
		pq.Array([]string{"L1"}),
		"2024-10-01",
		"2027-01-01",
	}, args)
}

func TestSourceConditionsEmpty(t *testing.T) {
	where, args := sourceConditions(SourceQuery{})
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestRowID(t *testing.T) {
	assert.Equal(t, "f-1", RowID(" f-1 ", "C1", "P1", "L1", "2025-03-01"))
	assert.Equal(t, "C1|P1||2025-03-01", RowID("", "C1", " P1", "", "2025-03-01"))
}
