package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDomainError_Is(t *testing.T) {
	t.Run("matches by code", func(t *testing.T) {
		err := NewDomainError("NOT_FOUND", "Team not found")
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("matches through wrapping", func(t *testing.T) {
		err := fmt.Errorf("load balance: %w", ErrInsufficientCredits)
		assert.True(t, errors.Is(err, ErrInsufficientCredits))
		assert.False(t, errors.Is(err, ErrQuotaExceeded))
	})

	t.Run("error message", func(t *testing.T) {
		assert.Equal(t, "Resource not found", ErrNotFound.Error())
	})
}

func TestIntegrityError(t *testing.T) {
	err := NewIntegrityError("balance_non_negative", "user:u1", "balance would be -5")

	assert.Equal(t, "integrity violation [balance_non_negative] on user:u1: balance would be -5", err.Error())
	assert.True(t, IsIntegrityError(fmt.Errorf("deduct: %w", err)))
	assert.False(t, IsIntegrityError(ErrInsufficientCredits))

	var de *DomainError
	assert.False(t, errors.As(error(err), &de))
}

func TestFilter_Normalize(t *testing.T) {
	f := Filter{Page: 0, PageSize: 500, OrderDir: "sideways"}.Normalize()
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, 100, f.PageSize)
	assert.Equal(t, "desc", f.OrderDir)
	assert.Equal(t, 0, f.Offset())

	f = Filter{Page: 3, PageSize: 10, OrderDir: "asc"}.Normalize()
	assert.Equal(t, 20, f.Offset())
	assert.Equal(t, "asc", f.OrderDir)
}

func TestNewPaginated(t *testing.T) {
	p := NewPaginated([]int{1, 2}, 21, 1, 10)
	assert.Equal(t, 3, p.TotalPages)

	p = NewPaginated([]int{}, 0, 1, 0)
	assert.Equal(t, 0, p.TotalPages)
}
