package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "not found error",
			err:  ErrKeyNotFound,
			want: true,
		},
		{
			name: "wrapped not found error",
			err:  fmt.Errorf("redis get cart-storage:abc: %w", ErrKeyNotFound),
			want: true,
		},
		{
			name: "joined not found error",
			err:  errors.Join(ErrKeyNotFound, errors.New("additional context")),
			want: true,
		},
		{
			name: "other error",
			err:  ErrCorruptSnapshot,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsNotFound(tt.err)
			if got != tt.want {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.want)
			}
		})
	}
}
