// Package province holds the catalog of Ecuadorian provinces with their
// reference centers and detects which province an input file covers.
package province

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/bookmap/internal/geo"
	"github.com/sells-group/bookmap/internal/model"
)

// Province is a named province with a fixed reference center.
type Province struct {
	Name   string           `json:"name"`
	Center model.Coordinate `json:"center"`
}

// CountryCenter is used for provinces with no known center.
var CountryCenter = model.Coordinate{Lat: -1.8312, Lon: -78.1834}

// defaultProvinces centers are the provincial capitals.
var defaultProvinces = []Province{
	{"Pichincha", model.Coordinate{Lat: -0.1807, Lon: -78.4678}},
	{"Guayas", model.Coordinate{Lat: -2.1894, Lon: -79.8711}},
	{"Manabí", model.Coordinate{Lat: -1.0659, Lon: -80.7378}},
	{"Tungurahua", model.Coordinate{Lat: -1.2177, Lon: -78.6359}},
	{"Cotopaxi", model.Coordinate{Lat: -0.8964, Lon: -78.6149}},
	{"Imbabura", model.Coordinate{Lat: 0.3516, Lon: -78.1197}},
	{"Carchi", model.Coordinate{Lat: 0.5879, Lon: -77.1997}},
	{"Esmeraldas", model.Coordinate{Lat: 0.9633, Lon: -78.1636}},
	{"Sucumbíos", model.Coordinate{Lat: -0.1213, Lon: -76.3864}},
	{"Orellana", model.Coordinate{Lat: -0.4661, Lon: -76.9827}},
	{"Pastaza", model.Coordinate{Lat: -1.5236, Lon: -78.1177}},
	{"Morona Santiago", model.Coordinate{Lat: -2.3076, Lon: -78.1847}},
	{"Zamora Chinchipe", model.Coordinate{Lat: -4.7131, Lon: -78.9450}},
	{"Loja", model.Coordinate{Lat: -3.9977, Lon: -79.2044}},
	{"El Oro", model.Coordinate{Lat: -3.3642, Lon: -79.9633}},
	{"Santa Elena", model.Coordinate{Lat: -2.2235, Lon: -80.3636}},
	{"Los Ríos", model.Coordinate{Lat: -1.6298, Lon: -79.5839}},
	{"Chimborazo", model.Coordinate{Lat: -1.6734, Lon: -78.6469}},
	{"Azuay", model.Coordinate{Lat: -2.9001, Lon: -79.0059}},
	{"Bolívar", model.Coordinate{Lat: -1.5926, Lon: -79.0010}},
	{"Cañar", model.Coordinate{Lat: -2.7397, Lon: -78.8486}},
	{"Napo", model.Coordinate{Lat: -0.9938, Lon: -77.8129}},
	{"Santo Domingo de los Tsáchilas", model.Coordinate{Lat: -0.2530, Lon: -79.1754}},
	{"Galápagos", model.Coordinate{Lat: -0.9017, Lon: -89.6103}},
}

// Catalog is an ordered set of provinces looked up by accent- and
// case-insensitive name.
type Catalog struct {
	provinces []Province
	byName    map[string]int
}

// NewCatalog builds a catalog. Later entries replace earlier ones with the
// same folded name.
func NewCatalog(provinces []Province) *Catalog {
	c := &Catalog{byName: make(map[string]int, len(provinces))}
	for _, p := range provinces {
		c.put(p)
	}
	return c
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	return NewCatalog(defaultProvinces)
}

func (c *Catalog) put(p Province) {
	key := geo.Fold(p.Name)
	if i, ok := c.byName[key]; ok {
		c.provinces[i] = p
		return
	}
	c.byName[key] = len(c.provinces)
	c.provinces = append(c.provinces, p)
}

// Lookup finds a province by name.
func (c *Catalog) Lookup(name string) (Province, bool) {
	i, ok := c.byName[geo.Fold(name)]
	if !ok {
		return Province{}, false
	}
	return c.provinces[i], true
}

// Resolve returns the catalog entry for name, or a province carrying name
// and the country center when the catalog does not know it.
func (c *Catalog) Resolve(name string) (Province, bool) {
	if p, ok := c.Lookup(name); ok {
		return p, true
	}
	return Province{Name: strings.TrimSpace(name), Center: CountryCenter}, false
}

// All returns the provinces in catalog order.
func (c *Catalog) All() []Province {
	out := make([]Province, len(c.provinces))
	copy(out, c.provinces)
	return out
}

type catalogFile struct {
	Provinces []struct {
		Name string  `yaml:"name"`
		Lat  float64 `yaml:"lat"`
		Lon  float64 `yaml:"lon"`
	} `yaml:"provinces"`
}

// LoadCatalog returns the default catalog extended by the YAML file at path.
// A missing file is not an error.
func LoadCatalog(path string) (*Catalog, error) {
	c := DefaultCatalog()
	if path == "" {
		return c, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "province: read catalog %s", path)
	}

	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "province: parse catalog %s", path)
	}
	for _, e := range f.Provinces {
		p := Province{Name: strings.TrimSpace(e.Name), Center: model.Coordinate{Lat: e.Lat, Lon: e.Lon}}
		if p.Name == "" || !p.Center.Valid() {
			zap.L().Warn("province: skipping invalid catalog entry", zap.String("name", e.Name))
			continue
		}
		c.put(p)
	}

	zap.L().Debug("province: catalog loaded",
		zap.String("path", path),
		zap.Int("overrides", len(f.Provinces)),
		zap.Int("provinces", len(c.provinces)),
	)
	return c, nil
}
