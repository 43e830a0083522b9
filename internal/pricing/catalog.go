package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"reelforge/internal/config"
	"reelforge/internal/services"
)

// Category names a spend bucket tracked by the budget ledger.
type Category string

const (
	CategoryScrape           Category = "scrape"
	CategoryAnalysis         Category = "analysis"
	CategoryStrategyGen      Category = "strategy-gen"
	CategorySegmentGen       Category = "segment-gen"
	CategoryNarrationPremium Category = "narration-premium"
)

// Categories lists every known category in ledger column order.
func Categories() []Category {
	return []Category{
		CategoryScrape,
		CategoryAnalysis,
		CategoryStrategyGen,
		CategorySegmentGen,
		CategoryNarrationPremium,
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory accepts the canonical name or its underscore spelling.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "_", "-"))
	if !c.Valid() {
		return "", services.Wrap(services.ErrConfiguration, "pricing", "parse category", fmt.Sprintf("unknown category %q", raw), nil)
	}
	return c, nil
}

// Mode selects the segment generation quality tier.
type Mode string

const (
	ModeTest       Mode = config.ModeTest
	ModeProduction Mode = config.ModeProduction
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeTest || m == ModeProduction
}

// Catalog holds unit prices. The zero value prices everything at zero; use
// NewCatalog or Default.
type Catalog struct {
	scrape            decimal.Decimal
	analysis          decimal.Decimal
	strategy          decimal.Decimal
	segmentTest       decimal.Decimal
	segmentProduction decimal.Decimal
	narrationPerChar  decimal.Decimal
}

// NewCatalog builds a catalog from configured unit prices.
func NewCatalog(p config.Pricing) Catalog {
	return Catalog{
		scrape:            decimal.NewFromFloat(p.ScrapePerResult),
		analysis:          decimal.NewFromFloat(p.AnalysisPerCall),
		strategy:          decimal.NewFromFloat(p.StrategyPerCall),
		segmentTest:       decimal.NewFromFloat(p.SegmentTest),
		segmentProduction: decimal.NewFromFloat(p.SegmentProduction),
		narrationPerChar:  decimal.NewFromFloat(p.NarrationPremiumPerChar),
	}
}

// Default returns the catalog built from default pricing.
func Default() Catalog {
	return NewCatalog(config.Default().Pricing)
}

// UnitPrice returns the price of one unit of category in mode.
func (c Catalog) UnitPrice(category Category, mode Mode) (decimal.Decimal, error) {
	switch category {
	case CategoryScrape:
		return c.scrape, nil
	case CategoryAnalysis:
		return c.analysis, nil
	case CategoryStrategyGen:
		return c.strategy, nil
	case CategoryNarrationPremium:
		return c.narrationPerChar, nil
	case CategorySegmentGen:
		switch mode {
		case ModeTest:
			return c.segmentTest, nil
		case ModeProduction:
			return c.segmentProduction, nil
		default:
			return decimal.Zero, services.Wrap(services.ErrConfiguration, "pricing", "unit price", fmt.Sprintf("unknown mode %q", mode), nil)
		}
	default:
		return decimal.Zero, services.Wrap(services.ErrConfiguration, "pricing", "unit price", fmt.Sprintf("unknown category %q", category), nil)
	}
}

// PriceOf returns the cost of quantity units of category in mode. Mode is
// validated only for segment generation; other categories ignore it.
func (c Catalog) PriceOf(category Category, quantity int64, mode Mode) (decimal.Decimal, error) {
	if quantity < 0 {
		return decimal.Zero, services.Wrap(services.ErrValidation, "pricing", "price", fmt.Sprintf("negative quantity %d", quantity), nil)
	}
	unit, err := c.UnitPrice(category, mode)
	if err != nil {
		return decimal.Zero, err
	}
	return unit.Mul(decimal.NewFromInt(quantity)), nil
}

// Estimate is a cost breakdown for one production.
type Estimate struct {
	Narration decimal.Decimal
	Segments  decimal.Decimal
	Total     decimal.Decimal
}

// EstimateProduction prices a production of segments clips and a narration
// of chars characters. Free narration contributes zero.
func (c Catalog) EstimateProduction(chars, segments int64, mode Mode, premiumNarration bool) (Estimate, error) {
	segmentCost, err := c.PriceOf(CategorySegmentGen, segments, mode)
	if err != nil {
		return Estimate{}, err
	}
	narrationCost := decimal.Zero
	if premiumNarration {
		narrationCost, err = c.PriceOf(CategoryNarrationPremium, chars, mode)
		if err != nil {
			return Estimate{}, err
		}
	}
	return Estimate{
		Narration: narrationCost,
		Segments:  segmentCost,
		Total:     narrationCost.Add(segmentCost),
	}, nil
}
