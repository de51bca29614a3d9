package matching

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/rray336/financial-model-analyzer/pkg/contracts/domain"
)

// DefaultThreshold is the confidence floor for fuzzy pairs. Below it a
// wrong pairing corrupts every downstream variance, so unmatched is the
// safer outcome.
const DefaultThreshold = 0.80

// Matcher pairs line items between an old and a new sheet structure.
type Matcher struct {
	threshold float64
	logger    *slog.Logger
}

// NewMatcher creates a matcher. A non-positive threshold falls back to
// DefaultThreshold.
func NewMatcher(threshold float64, logger *slog.Logger) *Matcher {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{threshold: threshold, logger: logger}
}

// candidate is a scored fuzzy pairing awaiting greedy selection.
type candidate struct {
	oldIdx, newIdx int
	score          float64
}

// Match pairs the two item lists. Exact matches on normalized names are
// taken first and score 1.0. Remaining items are fuzzily paired greedily
// by descending score, one-to-one, ties broken by old then new input
// order so the result is deterministic for identical inputs. Leftovers
// become old_only / new_only records.
//
// Results are ordered: matched pairs in old-side input order, then
// old-only items in input order, then new-only items in input order.
func (m *Matcher) Match(oldItems, newItems []domain.LineItem) []domain.MatchedPair {
	usedOld := make([]bool, len(oldItems))
	usedNew := make([]bool, len(newItems))
	pairedWith := make([]int, len(oldItems))
	confidence := make([]float64, len(oldItems))
	kind := make([]domain.MatchKind, len(oldItems))
	for i := range pairedWith {
		pairedWith[i] = -1
	}

	// Exact matching runs in two sub-passes: case-sensitive equality
	// first, then case-insensitive over whatever remains, so that with
	// case-variant duplicate names the same-case rows pair with each
	// other before input order decides anything. Duplicate names within
	// a sub-pass pair in input order. Looser equivalences (punctuation,
	// spacing) are left to the fuzzy pass, where normalized-identical
	// names still score 1.0.
	exactPass := func(canon func(string) string) {
		newByName := make(map[string][]int)
		for j := range newItems {
			if usedNew[j] {
				continue
			}
			n := canon(newItems[j].Name)
			newByName[n] = append(newByName[n], j)
		}
		for i := range oldItems {
			if usedOld[i] {
				continue
			}
			n := canon(oldItems[i].Name)
			queue := newByName[n]
			for len(queue) > 0 && usedNew[queue[0]] {
				queue = queue[1:]
			}
			newByName[n] = queue
			if len(queue) == 0 {
				continue
			}
			j := queue[0]
			usedOld[i], usedNew[j] = true, true
			pairedWith[i], confidence[i], kind[i] = j, 1.0, domain.MatchExact
		}
	}
	exactPass(strings.TrimSpace)
	exactPass(func(s string) string { return strings.ToLower(strings.TrimSpace(s)) })

	// Fuzzy pass over the leftovers.
	var candidates []candidate
	for i := range oldItems {
		if usedOld[i] {
			continue
		}
		for j := range newItems {
			if usedNew[j] {
				continue
			}
			if s := Similarity(oldItems[i].Name, newItems[j].Name); s >= m.threshold {
				candidates = append(candidates, candidate{oldIdx: i, newIdx: j, score: s})
			}
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		ca, cb := candidates[a], candidates[b]
		if ca.score != cb.score {
			return ca.score > cb.score
		}
		if ca.oldIdx != cb.oldIdx {
			return ca.oldIdx < cb.oldIdx
		}
		return ca.newIdx < cb.newIdx
	})
	for _, c := range candidates {
		if usedOld[c.oldIdx] || usedNew[c.newIdx] {
			continue
		}
		usedOld[c.oldIdx], usedNew[c.newIdx] = true, true
		pairedWith[c.oldIdx], confidence[c.oldIdx], kind[c.oldIdx] = c.newIdx, c.score, domain.MatchFuzzy
	}

	pairs := make([]domain.MatchedPair, 0, len(oldItems)+len(newItems))
	exact, fuzzy := 0, 0
	for i := range oldItems {
		if pairedWith[i] < 0 {
			continue
		}
		pairs = append(pairs, domain.MatchedPair{
			OldItem:    &oldItems[i],
			NewItem:    &newItems[pairedWith[i]],
			Confidence: confidence[i],
			Kind:       kind[i],
		})
		if kind[i] == domain.MatchExact {
			exact++
		} else {
			fuzzy++
		}
	}
	for i := range oldItems {
		if !usedOld[i] {
			pairs = append(pairs, domain.MatchedPair{OldItem: &oldItems[i], Kind: domain.MatchOldOnly})
		}
	}
	for j := range newItems {
		if !usedNew[j] {
			pairs = append(pairs, domain.MatchedPair{NewItem: &newItems[j], Kind: domain.MatchNewOnly})
		}
	}

	m.logger.Debug("line items matched",
		slog.Int("exact", exact),
		slog.Int("fuzzy", fuzzy),
		slog.Int("old_only", len(oldItems)-exact-fuzzy),
		slog.Int("new_only", len(newItems)-exact-fuzzy))

	return pairs
}
