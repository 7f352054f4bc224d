package ingest

import (
	"math"
	"sort"

	"github.com/FulgerX2007/csv-scatter-reports/pkg/model"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Describe computes count, mean, std, min, quartiles and max for every
// numeric column. Missing cells are ignored; std is the sample standard
// deviation and quartiles interpolate linearly between order statistics.
func Describe(ds *model.Dataset) *model.Stats {
	stats := &model.Stats{
		Columns: ds.NumericColumns(),
		Values:  make(map[string]map[string]float64, len(model.StatNames)),
	}
	for _, name := range model.StatNames {
		stats.Values[name] = make(map[string]float64, len(stats.Columns))
	}

	for _, name := range stats.Columns {
		col, _ := ds.Column(name)
		values := presentValues(col)

		set := func(stat string, v float64) { stats.Values[stat][name] = v }
		set("count", float64(len(values)))

		if len(values) == 0 {
			for _, s := range model.StatNames[1:] {
				set(s, math.NaN())
			}
			continue
		}

		sort.Float64s(values)
		set("mean", stat.Mean(values, nil))
		if len(values) > 1 {
			set("std", stat.StdDev(values, nil))
		} else {
			set("std", math.NaN())
		}
		set("min", floats.Min(values))
		set("25%", quantile(values, 0.25))
		set("50%", quantile(values, 0.50))
		set("75%", quantile(values, 0.75))
		set("max", floats.Max(values))
	}

	return stats
}

func presentValues(col *model.Column) []float64 {
	values := make([]float64, 0, len(col.Values))
	for i, v := range col.Values {
		if col.Missing[i] || math.IsNaN(v) {
			continue
		}
		values = append(values, v)
	}
	return values
}

// quantile interpolates linearly at position p*(n-1) of sorted values
func quantile(sorted []float64, p float64) float64 {
	pos := p * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
