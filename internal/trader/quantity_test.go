package trader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateQuantity(t *testing.T) {
	tests := []struct {
		name       string
		capital    float64
		entryPrice float64
		expected   float64
	}{
		{name: "exact division", capital: 1000, entryPrice: 100, expected: 10},
		{name: "floors the remainder", capital: 999, entryPrice: 100, expected: 9},
		{name: "zero entry price", capital: 1000, entryPrice: 0, expected: 0},
		{name: "negative entry price", capital: 1000, entryPrice: -5, expected: 0},
		{name: "capital below one share", capital: 99, entryPrice: 100, expected: 0},
		{name: "fractional price", capital: 100, entryPrice: 33.3, expected: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CalculateQuantity(tt.capital, tt.entryPrice))
		})
	}
}
