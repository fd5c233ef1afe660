package stats

import "github.com/misung-crm/misung-crm/internal/rowstore"

// Series maps an output field to its twelve monthly values.
type Series map[string]Months

// Binding routes one source's rows into an output series.
type Binding struct {
	Source  string
	Date    DateFunc
	Measure Measure
	Output  string
}

// Derivation computes an output series from series already present.
type Derivation struct {
	Output  string
	Compute func(Series) Months
}

// Difference derives output = minuend - subtrahend.
func Difference(output, minuend, subtrahend string) Derivation {
	return Derivation{Output: output, Compute: func(s Series) Months {
		return s[minuend].Sub(s[subtrahend])
	}}
}

// Total derives output as the month-wise sum of inputs.
func Total(output string, inputs ...string) Derivation {
	return Derivation{Output: output, Compute: func(s Series) Months {
		var out Months
		for _, in := range inputs {
			out = out.Add(s[in])
		}
		return out
	}}
}

// Aggregator turns fetched row sets into monthly series for one stats family.
type Aggregator struct {
	Bindings    []Binding
	Derivations []Derivation
}

// Bucket evaluates every binding. Several bindings may feed the same output.
func (a Aggregator) Bucket(b Bucketizer, sources map[string][]rowstore.Row, year int) Series {
	out := make(Series, len(a.Bindings)+len(a.Derivations))
	for _, binding := range a.Bindings {
		months := b.Bucket(sources[binding.Source], binding.Date, binding.Measure, year)
		out[binding.Output] = out[binding.Output].Add(months)
	}
	return out
}

// Derive applies the derivations in order, so later ones may use earlier outputs.
func (a Aggregator) Derive(s Series) Series {
	for _, d := range a.Derivations {
		s[d.Output] = d.Compute(s)
	}
	return s
}

// Aggregate buckets then derives.
func (a Aggregator) Aggregate(b Bucketizer, sources map[string][]rowstore.Row, year int) Series {
	return a.Derive(a.Bucket(b, sources, year))
}
