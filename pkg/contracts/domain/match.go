package domain

// MatchKind classifies how a MatchedPair was produced.
type MatchKind string

const (
	MatchExact   MatchKind = "exact"
	MatchFuzzy   MatchKind = "fuzzy"
	MatchOldOnly MatchKind = "old_only"
	MatchNewOnly MatchKind = "new_only"
)

// MatchedPair associates a line item from the old model with its
// counterpart in the new model. Each old item and each new item appears in
// at most one pair; items without a counterpart surface as old_only /
// new_only pairs with the other side nil.
type MatchedPair struct {
	OldItem    *LineItem `json:"old_item,omitempty"`
	NewItem    *LineItem `json:"new_item,omitempty"`
	Confidence float64   `json:"confidence"`
	Kind       MatchKind `json:"match_kind"`
}

// Name returns the display name for the pair, preferring the new model's
// label since that is what the user sees going forward.
func (p MatchedPair) Name() string {
	if p.NewItem != nil {
		return p.NewItem.Name
	}
	if p.OldItem != nil {
		return p.OldItem.Name
	}
	return ""
}

// Matched reports whether both sides of the pair are present.
func (p MatchedPair) Matched() bool {
	return p.OldItem != nil && p.NewItem != nil
}
