// Package scan sweeps configured screen slots for known item profiles and
// reduces the raw hits to an ordered click list.
package scan

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/fenrik/clickseq/internal/logging"
	"github.com/fenrik/clickseq/internal/models"
	"github.com/fenrik/clickseq/internal/screen"
	"github.com/fenrik/clickseq/internal/vision"
)

// Hit is one resolved click: the slot that matched, the winning item, and
// where the click lands.
type Hit struct {
	Slot       models.ItemSlot
	Item       models.ItemProfile
	Target     models.Coord
	Confidence float64
}

// Resolver sweeps a scan config's slots and reduces matches per scan mode.
// A sweep is one uninterruptible action; between slots only context
// cancellation stops it.
type Resolver struct {
	// Screen captures slot regions.
	Screen screen.Capturer

	// Matcher tests item profiles against captured regions.
	Matcher *vision.Matcher

	// SlotDelay paces captures between consecutive slots.
	SlotDelay time.Duration

	logger zerolog.Logger
}

// NewResolver returns a resolver that captures through scr and matches
// through matcher, pausing slotDelay between consecutive slot captures.
func NewResolver(scr screen.Capturer, matcher *vision.Matcher, slotDelay time.Duration) *Resolver {
	return &Resolver{
		Screen:    scr,
		Matcher:   matcher,
		SlotDelay: slotDelay,
		logger:    logging.Component("scan"),
	}
}

// Resolve sweeps every slot and returns the click list for the given mode,
// in slot scan order. An empty mode falls back to the config's default. An
// empty list with a nil error means no item was found anywhere.
func (r *Resolver) Resolve(ctx context.Context, cfg *models.ScanConfig, mode models.ScanMode) ([]Hit, error) {
	if mode == "" {
		mode = cfg.Mode
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("unknown scan mode %q", mode)
	}

	hits, err := r.sweep(ctx, cfg, cfg.Items, false)
	if err != nil {
		return nil, err
	}

	switch mode {
	case models.ScanBestOverall:
		hits = reduceBest(hits)
	case models.ScanAllBestPerCategory:
		hits = reduceCategories(hits)
	}

	r.logger.Debug().
		Str("scan", cfg.Name).
		Str("mode", string(mode)).
		Int("hits", len(hits)).
		Msg("scan resolved")
	return hits, nil
}

// Found reports whether any slot currently matches, optionally restricted to
// one item name. Scan waits poll this; it never clicks and stops sweeping at
// the first qualifying hit.
func (r *Resolver) Found(ctx context.Context, cfg *models.ScanConfig, itemName string) (bool, error) {
	items := cfg.Items
	if itemName != "" {
		profile := cfg.Item(itemName)
		if profile == nil {
			return false, fmt.Errorf("scan %s: unknown item %q", cfg.Name, itemName)
		}
		items = []models.ItemProfile{*profile}
	}

	hits, err := r.sweep(ctx, cfg, items, true)
	if err != nil {
		return false, err
	}
	return len(hits) > 0, nil
}

func (r *Resolver) sweep(ctx context.Context, cfg *models.ScanConfig, items []models.ItemProfile, firstOnly bool) ([]Hit, error) {
	var hits []Hit
	for i, slot := range orderedSlots(cfg) {
		if i > 0 && r.SlotDelay > 0 {
			if err := sleepCtx(ctx, r.SlotDelay); err != nil {
				return nil, err
			}
		}

		hit, err := r.bestForSlot(slot, items)
		if err != nil {
			return nil, err
		}
		if hit == nil {
			continue
		}
		hits = append(hits, *hit)
		if firstOnly {
			break
		}
	}
	return hits, nil
}

// bestForSlot captures the slot once and returns the best matching profile,
// or nil when nothing matches. Lower priority wins; on equal priority the
// earlier profile in the item list wins.
func (r *Resolver) bestForSlot(slot models.ItemSlot, items []models.ItemProfile) (*Hit, error) {
	img, err := r.Screen.CaptureRegion(slot.Region)
	if err != nil {
		return nil, fmt.Errorf("capture slot %s: %w", slot.ID, err)
	}

	var best *Hit
	for i := range items {
		match, err := r.Matcher.MatchProfile(img, items[i])
		if err != nil {
			return nil, err
		}
		if !match.Matched {
			continue
		}
		if best == nil || items[i].Priority < best.Item.Priority {
			best = &Hit{
				Slot:       slot,
				Item:       items[i],
				Target:     slot.ClickTarget(),
				Confidence: match.Confidence,
			}
		}
	}
	return best, nil
}

// orderedSlots returns the slots in ascending index order, reversed when the
// config asks for it. Slots sharing an index keep their declaration order.
func orderedSlots(cfg *models.ScanConfig) []models.ItemSlot {
	slots := make([]models.ItemSlot, len(cfg.Slots))
	copy(slots, cfg.Slots)
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Index < slots[j].Index })
	if cfg.Reverse {
		for i, j := 0, len(slots)-1; i < j; i, j = i+1, j-1 {
			slots[i], slots[j] = slots[j], slots[i]
		}
	}
	return slots
}

// reduceBest keeps the single lowest-priority hit. Earlier scan order wins
// ties.
func reduceBest(hits []Hit) []Hit {
	if len(hits) == 0 {
		return hits
	}
	best := 0
	for i := 1; i < len(hits); i++ {
		if hits[i].Item.Priority < hits[best].Item.Priority {
			best = i
		}
	}
	return hits[best : best+1]
}

// reduceCategories keeps, per category, only the lowest-priority hit across
// all slots. Items without a category compete only with themselves. Earlier
// scan order wins ties; output preserves scan order.
func reduceCategories(hits []Hit) []Hit {
	winners := make(map[string]int, len(hits))
	for i, hit := range hits {
		key := categoryKey(hit.Item)
		current, ok := winners[key]
		if !ok || hit.Item.Priority < hits[current].Item.Priority {
			winners[key] = i
		}
	}

	kept := make([]Hit, 0, len(winners))
	for i, hit := range hits {
		if winners[categoryKey(hit.Item)] == i {
			kept = append(kept, hit)
		}
	}
	return kept
}

func categoryKey(item models.ItemProfile) string {
	if item.Category != "" {
		return "category:" + item.Category
	}
	return "item:" + item.Name
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
