package usage

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/quotaflow/quotaflow/internal/types"
)

func TestLatestOf(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	older := &Usage{UID: "b", BaseModel: types.BaseModel{CreatedAt: t0}}
	newer := &Usage{UID: "a", BaseModel: types.BaseModel{CreatedAt: t0.Add(time.Second)}}

	assert.Equal(t, newer, LatestOf(older, newer))
	assert.Equal(t, newer, LatestOf(newer, older))
	assert.Equal(t, newer, LatestOf(nil, newer))
	assert.Equal(t, newer, LatestOf(newer, nil))
	assert.Nil(t, LatestOf(nil, nil))

	// Equal timestamps fall back to the higher uid
	tieLow := &Usage{UID: "a", BaseModel: types.BaseModel{CreatedAt: t0}}
	tieHigh := &Usage{UID: "b", BaseModel: types.BaseModel{CreatedAt: t0}}
	assert.Equal(t, tieHigh, LatestOf(tieLow, tieHigh))
	assert.Equal(t, tieHigh, LatestOf(tieHigh, tieLow))
}

func TestUsageValidate(t *testing.T) {
	valid := &Usage{
		UID:          "u1",
		EnrollmentID: "e1",
		Asset:        "image",
		Amount:       decimal.NewFromInt(1),
	}
	assert.NoError(t, valid.Validate())

	missingEnrollment := *valid
	missingEnrollment.EnrollmentID = ""
	assert.Error(t, missingEnrollment.Validate())

	missingAsset := *valid
	missingAsset.Asset = ""
	assert.Error(t, missingAsset.Validate())

	zeroAmount := *valid
	zeroAmount.Amount = decimal.Zero
	assert.Error(t, zeroAmount.Validate())

	negativeAmount := *valid
	negativeAmount.Amount = decimal.NewFromInt(-1)
	assert.Error(t, negativeAmount.Validate())
}
