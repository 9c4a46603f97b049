package resolve

import (
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sells-group/bookmap/internal/geo"
	"github.com/sells-group/bookmap/internal/model"
)

// Source tells where a parish centroid came from. Higher values win when
// two sources supply the same parish.
type Source int

const (
	SourceGeocoded Source = iota + 1
	SourceDataset
	SourcePolygon
)

func (s Source) String() string {
	switch s {
	case SourcePolygon:
		return "polygon"
	case SourceDataset:
		return "dataset"
	case SourceGeocoded:
		return "geocoded"
	default:
		return "unknown"
	}
}

// Centroid is one entry of the parish centroid index.
type Centroid struct {
	Name     string           `json:"name"`
	Location model.Coordinate `json:"location"`
	Source   Source           `json:"source"`
}

// DefaultThreshold is the minimum similarity for a fuzzy parish match.
const DefaultThreshold = 0.7

const memoSize = 1024

// CentroidIndex maps normalized parish names to centroids and answers
// approximate name lookups. It is built once per run and grows as
// parishes are geocoded.
type CentroidIndex struct {
	threshold float64
	entries   map[string]Centroid
	order     []string
	// memo caches Match results; "" records a miss.
	memo *lru.Cache[string, string]
}

// NewCentroidIndex returns an empty index. A threshold outside (0, 1]
// uses DefaultThreshold.
func NewCentroidIndex(threshold float64) *CentroidIndex {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	memo, _ := lru.New[string, string](memoSize) // only fails for size <= 0
	return &CentroidIndex{
		threshold: threshold,
		entries:   make(map[string]Centroid),
		memo:      memo,
	}
}

// Add stores c for name unless an entry from a higher-priority source is
// already present. It reports whether the index changed.
func (x *CentroidIndex) Add(name string, c model.Coordinate, src Source) bool {
	name = geo.NormalizeName(name)
	if name == "" || !c.Valid() {
		return false
	}
	if cur, ok := x.entries[name]; ok {
		if cur.Source > src {
			return false
		}
	} else {
		x.order = append(x.order, name)
	}
	x.entries[name] = Centroid{Name: name, Location: c, Source: src}
	x.memo.Purge()
	return true
}

// Get returns the entry stored under exactly name.
func (x *CentroidIndex) Get(name string) (Centroid, bool) {
	c, ok := x.entries[geo.NormalizeName(name)]
	return c, ok
}

// Len returns the number of parishes indexed.
func (x *CentroidIndex) Len() int { return len(x.entries) }

// Names returns the indexed names in insertion order.
func (x *CentroidIndex) Names() []string {
	return append([]string(nil), x.order...)
}

// Match finds the centroid for a parish name: exact name first, then an
// indexed name containing or contained in it, then the most similar name
// scoring at least the threshold. Several substring candidates are ranked
// by similarity, then by insertion order.
func (x *CentroidIndex) Match(name string) (Centroid, bool) {
	name = geo.NormalizeName(name)
	if name == "" || len(x.entries) == 0 {
		return Centroid{}, false
	}
	if c, ok := x.entries[name]; ok {
		return c, true
	}
	if key, ok := x.memo.Get(name); ok {
		if key == "" {
			return Centroid{}, false
		}
		return x.entries[key], true
	}

	key := x.lookup(name)
	x.memo.Add(name, key)
	if key == "" {
		return Centroid{}, false
	}
	return x.entries[key], true
}

func (x *CentroidIndex) lookup(name string) string {
	folded := geo.Fold(name)
	if folded == "" {
		return ""
	}

	best, bestScore := "", -1.0
	for _, key := range x.order {
		k := geo.Fold(key)
		if k == "" || (!strings.Contains(k, folded) && !strings.Contains(folded, k)) {
			continue
		}
		if score := geo.Similarity(name, key); score > bestScore {
			best, bestScore = key, score
		}
	}
	if best != "" {
		return best
	}

	best, _, ok := geo.BestMatch(name, x.order, x.threshold)
	if !ok {
		return ""
	}
	return best
}
