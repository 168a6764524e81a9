package bundle

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBundles(pairs ...interface{}) Bundles {
	b := Bundles{}
	for i := 0; i < len(pairs); i += 2 {
		b = append(b, Bundle{
			Asset: pairs[i].(string),
			Quota: decimal.NewFromInt(int64(pairs[i+1].(int))),
		})
	}
	return b
}

func TestBundles_Deduct(t *testing.T) {
	tests := []struct {
		name         string
		bundles      Bundles
		asset        string
		amount       int64
		expectedUsed int64
		expectedNext Bundles
	}{
		{
			name:         "partial_deduction_reduces_quota",
			bundles:      newBundles("image", 10, "text", 5),
			asset:        "image",
			amount:       3,
			expectedUsed: 3,
			expectedNext: newBundles("image", 7, "text", 5),
		},
		{
			name:         "exact_drain_removes_bundle",
			bundles:      newBundles("image", 10, "text", 5),
			asset:        "image",
			amount:       10,
			expectedUsed: 10,
			expectedNext: newBundles("text", 5),
		},
		{
			name:         "over_ask_removes_bundle_and_reports_quota_used",
			bundles:      newBundles("image", 10, "text", 5),
			asset:        "image",
			amount:       15,
			expectedUsed: 10,
			expectedNext: newBundles("text", 5),
		},
		{
			name:         "missing_asset_is_a_noop",
			bundles:      newBundles("image", 10),
			asset:        "video",
			amount:       5,
			expectedUsed: 0,
			expectedNext: newBundles("image", 10),
		},
		{
			name:         "last_bundle_drained_leaves_empty_list",
			bundles:      newBundles("image", 10),
			asset:        "image",
			amount:       10,
			expectedUsed: 10,
			expectedNext: Bundles{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			used, next := tt.bundles.Deduct(tt.asset, decimal.NewFromInt(tt.amount))
			assert.True(t, decimal.NewFromInt(tt.expectedUsed).Equal(used),
				"used = %s, want %d", used, tt.expectedUsed)
			assert.True(t, tt.expectedNext.Equal(next),
				"next = %v, want %v", next, tt.expectedNext)
		})
	}
}

func TestBundles_DeductDoesNotMutateReceiver(t *testing.T) {
	original := newBundles("image", 10)
	_, _ = original.Deduct("image", decimal.NewFromInt(4))
	assert.True(t, newBundles("image", 10).Equal(original))
}

func TestBundles_Validate(t *testing.T) {
	require.NoError(t, newBundles("image", 10, "text", 0).Validate())

	assert.Error(t, Bundles{}.Validate(), "empty list")
	assert.Error(t, newBundles("", 10).Validate(), "empty asset")
	assert.Error(t, newBundles("image", 10, "image", 5).Validate(), "duplicate asset")
	assert.Error(t, Bundles{{Asset: "image", Quota: decimal.NewFromInt(-1)}}.Validate(), "negative quota")
}

func TestValidLeftover(t *testing.T) {
	original := newBundles("image", 10, "text", 5)

	assert.True(t, ValidLeftover(original, newBundles("image", 7, "text", 5)))
	assert.True(t, ValidLeftover(original, newBundles("text", 5)))
	assert.True(t, ValidLeftover(original, Bundles{}))

	assert.False(t, ValidLeftover(original, newBundles("image", 11)), "exceeds grant")
	assert.False(t, ValidLeftover(original, newBundles("video", 1)), "asset outside grant")
	assert.False(t, ValidLeftover(original, newBundles("image", 3, "image", 2)), "duplicate asset")
	assert.False(t, ValidLeftover(original, newBundles("image", 0)), "zero quota entry")
}

func TestBundles_FindAndTotal(t *testing.T) {
	b := newBundles("image", 10, "text", 5)

	i, ok := b.Find("text")
	require.True(t, ok)
	assert.Equal(t, 1, i)

	_, ok = b.Find("video")
	assert.False(t, ok)

	assert.True(t, b.Contains("image"))
	assert.True(t, decimal.NewFromInt(5).Equal(b.Total("text")))
	assert.True(t, decimal.Zero.Equal(b.Total("video")))
}

func TestBundles_JSONBRoundTrip(t *testing.T) {
	b := newBundles("image", 10, "text", 5)

	value, err := b.Value()
	require.NoError(t, err)

	var scanned Bundles
	require.NoError(t, scanned.Scan(value.([]byte)))
	assert.True(t, b.Equal(scanned))

	var empty Bundles
	require.NoError(t, empty.Scan(nil))
	assert.Len(t, empty, 0)
}

func TestBundles_ValueNilEncodesEmptyList(t *testing.T) {
	var b Bundles
	value, err := b.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(value.([]byte)))

	raw, err := json.Marshal(newBundles("image", 10))
	require.NoError(t, err)
	assert.JSONEq(t, `[{"asset":"image","quota":"10"}]`, string(raw))
}
