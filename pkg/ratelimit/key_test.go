package ratelimit_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/billingsync/pkg/ratelimit"
)

func TestKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		class ratelimit.Class
		id    string
		want  string
	}{
		{name: "user scoped", class: ratelimit.ClassCheckout, id: "7b0f", want: "checkout:7b0f"},
		{name: "ip scoped", class: ratelimit.ClassWebhook, id: "203.0.113.7", want: "webhook:203.0.113.7"},
		{name: "empty id", class: ratelimit.ClassPortal, id: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ratelimit.Key(tt.class, tt.id))
		})
	}

	t.Run("long id is hashed", func(t *testing.T) {
		t.Parallel()
		key := ratelimit.Key(ratelimit.ClassMutate, strings.Repeat("x", 200))
		assert.True(t, strings.HasPrefix(key, "mutate:"))
		assert.Len(t, strings.TrimPrefix(key, "mutate:"), 32)
		assert.NotEqual(t, key, ratelimit.Key(ratelimit.ClassMutate, strings.Repeat("y", 200)))
	})
}
