package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grovetools/wastenet/errors"
)

func TestClassify(t *testing.T) {
	c := New(0, nil)
	assert.Equal(t, DefaultThreshold, c.Threshold())

	tests := []struct {
		name     string
		pred     Prediction
		want     string
		wantCode errors.ErrorCode
	}{
		{name: "bottle", pred: Prediction{"bottle", 0.9}, want: CategoryPlastic},
		{name: "cup", pred: Prediction{"cup", 0.61}, want: CategoryPlastic},
		{name: "book", pred: Prediction{"book", 0.7}, want: CategoryPaper},
		{name: "banana", pred: Prediction{"banana", 0.99}, want: CategoryOrganic},
		{name: "cell phone with odd casing", pred: Prediction{" Cell Phone ", 0.8}, want: CategoryOther},
		{name: "at threshold", pred: Prediction{"bottle", 0.60}, wantCode: errors.ErrCodeInvalidInput},
		{name: "below threshold", pred: Prediction{"apple", 0.3}, wantCode: errors.ErrCodeInvalidInput},
		{name: "unmapped label", pred: Prediction{"person", 0.99}, wantCode: errors.ErrCodeInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Classify(tt.pred)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, errors.GetCode(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOverrides(t *testing.T) {
	c := New(0.8, map[string]string{
		"Laptop": "ewaste",
		"bowl":   "",
		"cup":    "paper",
	})
	assert.Equal(t, 0.8, c.Threshold())

	got, ok := c.Category("laptop")
	require.True(t, ok)
	assert.Equal(t, "ewaste", got)

	_, ok = c.Category("bowl")
	assert.False(t, ok)

	got, _ = c.Category("cup")
	assert.Equal(t, "paper", got)

	_, err := c.Classify(Prediction{"cup", 0.75})
	assert.Error(t, err)

	// Overrides never leak into the defaults.
	assert.Equal(t, CategoryOther, DefaultLabels()["bowl"])
}

func TestInvalidThresholdFallsBack(t *testing.T) {
	assert.Equal(t, DefaultThreshold, New(1.5, nil).Threshold())
	assert.Equal(t, DefaultThreshold, New(-1, nil).Threshold())
	assert.Equal(t, 1.0, New(1, nil).Threshold())
}

func TestFirst(t *testing.T) {
	c := New(0, nil)

	p, category, ok := c.First([]Prediction{
		{"person", 0.99},
		{"bottle", 0.4},
		{"book", 0.8},
		{"apple", 0.9},
	})
	require.True(t, ok)
	assert.Equal(t, "book", p.Label)
	assert.Equal(t, CategoryPaper, category)

	_, _, ok = c.First([]Prediction{{"person", 0.99}})
	assert.False(t, ok)
	_, _, ok = c.First(nil)
	assert.False(t, ok)
}
