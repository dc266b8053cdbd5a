package pricing

import "github.com/benningd54/Anlab/internal/order/domain"

// Flat per-sample surcharges, in minor units per sample. These are list
// prices, not derived from the non-UC rate.
type surchargeRate struct {
	internalMinor int64
	externalMinor int64
}

var (
	waterFiltering = surchargeRate{1100, 1700}
	soilGrinding   = surchargeRate{600, 900}
	foreignSoil    = surchargeRate{900, 1400}
	plantGrinding  = surchargeRate{600, 900}
)

func (r surchargeRate) amount(internal bool, quantity int) int64 {
	per := r.externalMinor
	if internal {
		per = r.internalMinor
	}
	return per * int64(quantity)
}

// surcharges returns the flat additions for the order's sample type and
// questionnaire answers. Multiple applicable surcharges stack additively.
func surcharges(st domain.SampleType, q domain.SampleTypeQuestions, internal bool, quantity int) []Surcharge {
	var out []Surcharge
	switch st {
	case domain.SampleWater:
		if q.WaterFiltered {
			out = append(out, Surcharge{Label: "water filtering", AmountMinor: waterFiltering.amount(internal, quantity)})
		}
	case domain.SampleSoil:
		if q.Grind {
			out = append(out, Surcharge{Label: "soil grinding", AmountMinor: soilGrinding.amount(internal, quantity)})
		}
		if q.SoilImported {
			out = append(out, Surcharge{Label: "foreign soil", AmountMinor: foreignSoil.amount(internal, quantity)})
		}
	case domain.SamplePlant:
		if q.Grind {
			out = append(out, Surcharge{Label: "plant grinding", AmountMinor: plantGrinding.amount(internal, quantity)})
		}
	}
	return out
}
