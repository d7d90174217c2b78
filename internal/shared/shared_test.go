package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaginationDefaults(t *testing.T) {
	p := Pagination{}
	assert.Equal(t, 20, p.Limit())
	assert.Equal(t, 0, p.Offset())

	p = Pagination{Page: 3, PerPage: 25}
	assert.Equal(t, 25, p.Limit())
	assert.Equal(t, 50, p.Offset())
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(0, 0, 45)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 20, p.PerPage)
	assert.Equal(t, 3, p.TotalPages)

	p = NewPagination(2, 10, 0)
	assert.Equal(t, 0, p.TotalPages)
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "GHS 1,250.00", FormatAmount("GHS", 1250))
	assert.Equal(t, "GHS 0.50", FormatAmount("", 0.5))
	assert.Equal(t, "USD 1,000,000.25", FormatAmount("USD", 1000000.25))
}

func TestIdempotencyKey(t *testing.T) {
	assert.Equal(t, "teller:momo:MM-1", IdempotencyKey("teller", "momo", "MM-1"))
}

func TestActorContext(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", ActorFromContext(ctx))
	ctx = ContextWithActor(ctx, "42")
	assert.Equal(t, "42", ActorFromContext(ctx))
}
