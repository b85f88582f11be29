package models

// FeatureVector is an ordered set of named numeric features for one bar.
// Names are shared and must not be modified.
type FeatureVector struct {
	Names  []string
	Values []float64
}

// Len returns the number of features.
func (v FeatureVector) Len() int { return len(v.Values) }

// Get returns the named feature or 0 when it is absent.
func (v FeatureVector) Get(name string) float64 {
	for i, n := range v.Names {
		if n == name {
			return v.Values[i]
		}
	}
	return 0
}

// Map copies the vector into a name -> value map.
func (v FeatureVector) Map() map[string]float64 {
	m := make(map[string]float64, len(v.Names))
	for i, n := range v.Names {
		m[n] = v.Values[i]
	}
	return m
}
