package sensor

import (
	"slices"
)

// SameAs reports structural equality used for change detection: formula text,
// measurement types (order-insensitive), start, end and aggregation type.
// Variables are derived from the formula and are not compared.
func (f FormulaSpec) SameAs(o FormulaSpec) bool {
	return f.Formula == o.Formula &&
		slices.Equal(sortedTypes(f.MeasurementType), sortedTypes(o.MeasurementType)) &&
		f.Start.Equal(o.Start) &&
		f.End.Equal(o.End) &&
		f.AggregationType == o.AggregationType
}

func sortedTypes(types []string) []string {
	out := UniqueNonEmpty(types)
	slices.Sort(out)
	return out
}

// Delta returns the incoming formulas that have no structurally equal
// counterpart in the stored definition, in their original order. A nil
// stored definition means every formula is new.
func Delta(incoming Definition, stored *Definition) []FormulaSpec {
	var previous []FormulaSpec
	if stored != nil {
		previous = stored.Formulas
	}

	changed := []FormulaSpec{}
	for _, f := range incoming.Formulas {
		found := slices.ContainsFunc(previous, func(p FormulaSpec) bool {
			return p.SameAs(f)
		})
		if !found {
			changed = append(changed, f)
		}
	}
	return changed
}
