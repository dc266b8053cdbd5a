// Package pricing joins an order's selected test codes against the price
// catalog and produces the per-line breakdown and order total.
//
// All money is in integer minor units. The catalog stores internal (UC)
// prices only; external prices are derived at quote time from the configured
// non-UC rate and are never persisted.
package pricing

import (
	"context"
	"math"

	"github.com/benningd54/Anlab/internal/order/domain"
)

// Entry is one price catalog row, internal rates only.
type Entry struct {
	Code               string `json:"code"`
	Analysis           string `json:"analysis"`
	Category           string `json:"category"`
	Group              string `json:"group,omitempty"`
	InternalCostMinor  int64  `json:"internal_cost_minor"`
	InternalSetupMinor int64  `json:"internal_setup_minor"`
}

// Catalog is the price lookup collaborator. FindByCodes returns the entries
// it found plus the codes it did not; it is not an error at this layer for a
// code to be absent.
type Catalog interface {
	FindByCodes(ctx context.Context, codes []string) ([]Entry, []string, error)
	ListActive(ctx context.Context) ([]Entry, error)
}

// DefaultNonUCRate is the external markup multiplier used when none is
// configured.
const DefaultNonUCRate = 1.9

// CeilToUnit rounds minor units up to the next whole currency unit.
func CeilToUnit(minor int64) int64 {
	return (minor + 99) / 100 * 100
}

// ExternalMinor derives an external price from an internal one:
// ceiling(internal x rate), to the whole currency unit. The rate is snapped
// to basis points and the ceiling is taken in integer arithmetic, so rates
// whose float64 representation rounds up (1.1, 1.3, ...) do not overshoot
// the exact ceiling. Deriving twice from the same input always yields the
// same result.
func ExternalMinor(internalMinor int64, rate float64) int64 {
	bp := int64(math.Round(rate * 10000))
	const unitBP = 100 * 10000
	return (internalMinor*bp + unitBP - 1) / unitBP * 100
}

type Engine struct {
	catalog   Catalog
	nonUCRate float64
}

func NewEngine(catalog Catalog, nonUCRate float64) *Engine {
	if nonUCRate <= 0 {
		nonUCRate = DefaultNonUCRate
	}
	return &Engine{catalog: catalog, nonUCRate: nonUCRate}
}

// Request carries everything a quote depends on. The client type is already
// resolved by the caller; the engine never consults identity state.
type Request struct {
	Codes          []string
	Quantity       int
	InternalClient bool
	SampleType     domain.SampleType
	Questions      domain.SampleTypeQuestions
}

type LineItem struct {
	Code          string `json:"code"`
	Analysis      string `json:"analysis"`
	CostMinor     int64  `json:"cost_minor"`
	SetupMinor    int64  `json:"setup_minor"`
	SubTotalMinor int64  `json:"sub_total_minor"`
	TotalMinor    int64  `json:"total_minor"`
}

type Surcharge struct {
	Label       string `json:"label"`
	AmountMinor int64  `json:"amount_minor"`
}

type Quote struct {
	Lines      []LineItem  `json:"lines"`
	Surcharges []Surcharge `json:"surcharges,omitempty"`
	TotalMinor int64       `json:"total_minor"`
}

// TestDetails converts the quote lines into the order details representation.
func (q *Quote) TestDetails() []domain.TestDetails {
	out := make([]domain.TestDetails, 0, len(q.Lines))
	for _, l := range q.Lines {
		out = append(out, domain.TestDetails{
			Code:          l.Code,
			Analysis:      l.Analysis,
			CostMinor:     l.CostMinor,
			SetupMinor:    l.SetupMinor,
			SubTotalMinor: l.SubTotalMinor,
			TotalMinor:    l.TotalMinor,
		})
	}
	return out
}

// Quote prices the request. Any requested code absent from the catalog fails
// the whole operation with a MissingCodesError listing every absent code;
// no partial breakdown is ever returned.
func (e *Engine) Quote(ctx context.Context, req Request) (*Quote, error) {
	if req.Quantity < 1 || req.Quantity > domain.MaxQuantity {
		return nil, &domain.ValidationError{Fields: []domain.FieldError{
			{Field: "quantity", Message: "must be between 1 and 100"},
		}}
	}
	if len(req.Codes) == 0 {
		return nil, &domain.ValidationError{Fields: []domain.FieldError{
			{Field: "selected_tests", Message: "at least one test is required"},
		}}
	}

	entries, missing, err := e.catalog.FindByCodes(ctx, req.Codes)
	if err != nil {
		return nil, err
	}
	if len(missing) > 0 {
		return nil, &domain.MissingCodesError{Codes: missing}
	}
	byCode := make(map[string]Entry, len(entries))
	for _, en := range entries {
		byCode[en.Code] = en
	}

	q := &Quote{Lines: make([]LineItem, 0, len(req.Codes))}
	for _, code := range req.Codes {
		en := byCode[code]
		cost := CeilToUnit(en.InternalCostMinor)
		setup := CeilToUnit(en.InternalSetupMinor)
		if !req.InternalClient {
			cost = ExternalMinor(en.InternalCostMinor, e.nonUCRate)
			setup = ExternalMinor(en.InternalSetupMinor, e.nonUCRate)
		}
		sub := cost * int64(req.Quantity)
		q.Lines = append(q.Lines, LineItem{
			Code:          en.Code,
			Analysis:      en.Analysis,
			CostMinor:     cost,
			SetupMinor:    setup,
			SubTotalMinor: sub,
			TotalMinor:    sub + setup,
		})
		q.TotalMinor += sub + setup
	}

	q.Surcharges = surcharges(req.SampleType, req.Questions, req.InternalClient, req.Quantity)
	for _, s := range q.Surcharges {
		q.TotalMinor += s.AmountMinor
	}

	return q, nil
}

// TestItem is a price list row with both rate columns, for display.
type TestItem struct {
	Code               string `json:"code"`
	Analysis           string `json:"analysis"`
	Category           string `json:"category"`
	Group              string `json:"group,omitempty"`
	InternalCostMinor  int64  `json:"internal_cost_minor"`
	ExternalCostMinor  int64  `json:"external_cost_minor"`
	InternalSetupMinor int64  `json:"internal_setup_minor"`
	ExternalSetupMinor int64  `json:"external_setup_minor"`
}

// PriceList renders the active catalog with the derived external column.
func (e *Engine) PriceList(ctx context.Context) ([]TestItem, error) {
	entries, err := e.catalog.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]TestItem, 0, len(entries))
	for _, en := range entries {
		items = append(items, TestItem{
			Code:               en.Code,
			Analysis:           en.Analysis,
			Category:           en.Category,
			Group:              en.Group,
			InternalCostMinor:  CeilToUnit(en.InternalCostMinor),
			ExternalCostMinor:  ExternalMinor(en.InternalCostMinor, e.nonUCRate),
			InternalSetupMinor: CeilToUnit(en.InternalSetupMinor),
			ExternalSetupMinor: ExternalMinor(en.InternalSetupMinor, e.nonUCRate),
		})
	}
	return items, nil
}
