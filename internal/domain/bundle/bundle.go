package bundle

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	ierr "github.com/quotaflow/quotaflow/internal/errors"
)

// Bundle is a grant of a specific quantity of one asset. Two bundles
// refer to the same grant iff their assets match byte-for-byte.
type Bundle struct {
	Asset string          `json:"asset" db:"asset"`
	Quota decimal.Decimal `json:"quota" db:"quota"`
}

// Bundles is an ordered bundle list persisted as JSONB. All operations
// are pure; receivers are never mutated.
type Bundles []Bundle

// Scan implements the sql.Scanner interface for Bundles
func (b *Bundles) Scan(value interface{}) error {
	if value == nil {
		*b = Bundles{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("failed to unmarshal JSONB value: %v", value)
	}

	result := Bundles{}
	err := json.Unmarshal(bytes, &result)
	*b = result
	return err
}

// Value implements the driver.Valuer interface for Bundles
func (b Bundles) Value() (driver.Value, error) {
	if b == nil {
		return json.Marshal(Bundles{})
	}
	return json.Marshal(b)
}

// Find returns the first position holding the asset
func (b Bundles) Find(asset string) (int, bool) {
	for i, item := range b {
		if item.Asset == asset {
			return i, true
		}
	}
	return -1, false
}

// Contains reports whether any bundle holds the asset
func (b Bundles) Contains(asset string) bool {
	_, ok := b.Find(asset)
	return ok
}

// Total returns the quota held for the asset
func (b Bundles) Total(asset string) decimal.Decimal {
	if i, ok := b.Find(asset); ok {
		return b[i].Quota
	}
	return decimal.Zero
}

// Clone returns a deep copy of the list
func (b Bundles) Clone() Bundles {
	if b == nil {
		return Bundles{}
	}
	next := make(Bundles, len(b))
	copy(next, b)
	return next
}

// Deduct consumes up to amount of the asset from the list and returns the
// consumed quantity together with the resulting list.
//
// If no bundle holds the asset the list is returned unchanged with zero
// used. A bundle whose quota exceeds the amount is reduced in place on the
// copy; a bundle drained to zero or below is removed entirely, a leftover
// never carries zero-quota entries. On over-ask the full quota is reported
// as used, leaving the residual to the caller.
func (b Bundles) Deduct(asset string, amount decimal.Decimal) (decimal.Decimal, Bundles) {
	i, ok := b.Find(asset)
	if !ok {
		return decimal.Zero, b
	}

	if b[i].Quota.GreaterThan(amount) {
		next := b.Clone()
		next[i].Quota = next[i].Quota.Sub(amount)
		return amount, next
	}

	used := b[i].Quota
	next := make(Bundles, 0, len(b)-1)
	next = append(next, b[:i]...)
	next = append(next, b[i+1:]...)
	return used, next
}

// Validate enforces the create-time invariants: assets unique and
// non-empty, quotas non-negative.
func (b Bundles) Validate() error {
	if len(b) == 0 {
		return ierr.NewError("bundles must not be empty").
			WithHint("At least one bundle is required").
			Mark(ierr.ErrValidation)
	}

	seen := make(map[string]struct{}, len(b))
	for _, item := range b {
		if item.Asset == "" {
			return ierr.NewError("bundle asset must not be empty").
				WithHint("Every bundle needs an asset name").
				Mark(ierr.ErrValidation)
		}
		if item.Quota.IsNegative() {
			return ierr.NewError("bundle quota must not be negative").
				WithHintf("Bundle for asset %s has a negative quota", item.Asset).
				WithReportableDetails(map[string]any{"asset": item.Asset, "quota": item.Quota}).
				Mark(ierr.ErrValidation)
		}
		if _, dup := seen[item.Asset]; dup {
			return ierr.NewError("duplicate asset in bundles").
				WithHintf("Asset %s appears more than once", item.Asset).
				WithReportableDetails(map[string]any{"asset": item.Asset}).
				Mark(ierr.ErrValidation)
		}
		seen[item.Asset] = struct{}{}
	}
	return nil
}

// ValidLeftover reports whether leftover is a legal post-debit state for
// an enrollment originally granted original: every leftover asset must
// come from the original set, hold a positive quota not exceeding the
// grant, and appear at most once.
func ValidLeftover(original, leftover Bundles) bool {
	seen := make(map[string]struct{}, len(leftover))
	for _, item := range leftover {
		if _, dup := seen[item.Asset]; dup {
			return false
		}
		seen[item.Asset] = struct{}{}

		i, ok := original.Find(item.Asset)
		if !ok {
			return false
		}
		if !item.Quota.IsPositive() || item.Quota.GreaterThan(original[i].Quota) {
			return false
		}
	}
	return true
}

// Equal reports whether two lists hold the same assets with the same
// quotas in the same order
func (b Bundles) Equal(other Bundles) bool {
	if len(b) != len(other) {
		return false
	}
	for i := range b {
		if b[i].Asset != other[i].Asset || !b[i].Quota.Equal(other[i].Quota) {
			return false
		}
	}
	return true
}
