package persistence

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreError(t *testing.T) {
	cause := errors.New("timeout")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "with table", err: storeError("fetch", "users", cause), want: "store call failed: fetch users: timeout"},
		{name: "without table", err: storeError("prepare", "", cause), want: "store call failed: prepare: timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.EqualError(t, tt.err, tt.want)
			assert.ErrorIs(t, tt.err, ErrStoreCallFailed)
			assert.ErrorIs(t, tt.err, cause)
		})
	}
}

func TestStoreError_DoesNotWrapTwice(t *testing.T) {
	inner := storeError("execute", "users", errors.New("boom"))
	outer := storeError("fetch", "orders", fmt.Errorf("retry: %w", inner))

	var se *StoreError
	assert.ErrorAs(t, outer, &se)
	assert.Equal(t, "execute", se.Op)
	assert.Nil(t, storeError("fetch", "users", nil))
}
