package model

// Counters summarizes the outcome of a resolution pass.
// Placed + ExcludedOutside + Unplaceable always equals Total.
type Counters struct {
	Total           int `json:"total"`
	Placed          int `json:"placed"`
	ExcludedOutside int `json:"excluded_outside"`
	Unplaceable     int `json:"unplaceable"`
}

// Consistent reports whether the three outcome counters sum to Total.
func (c Counters) Consistent() bool {
	return c.Placed+c.ExcludedOutside+c.Unplaceable == c.Total
}
