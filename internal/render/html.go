package render

import (
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bookmap/internal/boundary"
	"github.com/sells-group/bookmap/internal/model"
	"github.com/sells-group/bookmap/internal/resolve"
)

// DefaultZoom frames a province around its center.
const DefaultZoom = 10

// Output file names inside the output directory.
const (
	HTMLFile     = "map.html"
	MarkersFile  = "markers.geojson"
	BoundaryFile = "boundary.geojson"
)

// Marker is one map pin with its popup fields.
type Marker struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Name    string  `json:"name"`
	Parish  string  `json:"parish,omitempty"`
	Canton  string  `json:"canton,omitempty"`
	Address string  `json:"address,omitempty"`
	Stage   string  `json:"stage"`
}

// Page is the data behind map.html.
type Page struct {
	Title     string
	Province  string
	Center    model.Coordinate
	Zoom      int
	Markers   []Marker
	Boundary  template.JS // GeoJSON text, empty when no polygons
	Extent    [][2]float64 // [[south, west], [north, east]] of the polygons
	Counters  model.Counters
	Messages  []model.Message
	TopParish string
}

// NewPage builds the page for one run. The boundary layer is included
// when r holds polygons.
func NewPage(province string, center model.Coordinate, res *resolve.Result, r *boundary.Resolver) (*Page, error) {
	p := &Page{
		Title:    fmt.Sprintf("Librerías en %s", province),
		Province: province,
		Center:   center,
		Zoom:     DefaultZoom,
		Markers:  make([]Marker, 0, len(res.Placements)),
		Counters: res.Counters,
	}
	for _, pl := range res.Placements {
		p.Markers = append(p.Markers, Marker{
			Lat:     pl.Location.Lat,
			Lon:     pl.Location.Lon,
			Name:    pl.Name,
			Parish:  pl.Parish,
			Canton:  pl.Canton,
			Address: pl.Address,
			Stage:   string(pl.Stage),
		})
	}
	if fc := Boundaries(r); fc != nil {
		data, err := MarshalGeoJSON(fc)
		if err != nil {
			return nil, err
		}
		// encoding/json escapes <, > and & so the text is safe inside <script>.
		p.Boundary = template.JS(data) //nolint:gosec
		b := r.Union().Bounds()
		p.Extent = [][2]float64{{b.Min(1), b.Min(0)}, {b.Max(1), b.Max(0)}}
	}
	return p, nil
}

var pageTmpl = template.Must(template.New("map").Parse(pageHTML))

// WriteHTML renders p as a standalone Leaflet page.
func WriteHTML(w io.Writer, p *Page) error {
	if err := pageTmpl.Execute(w, p); err != nil {
		return eris.Wrap(err, "render: execute map template")
	}
	return nil
}

// Files lists the paths written by Write.
type Files struct {
	HTML     string `json:"html"`
	Markers  string `json:"markers"`
	Boundary string `json:"boundary,omitempty"`
}

// Write renders the map page, the marker layer and, when present, the
// boundary layer into dir, creating it if needed.
func Write(dir string, p *Page, res *resolve.Result, r *boundary.Resolver) (Files, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Files{}, eris.Wrapf(err, "render: create %s", dir)
	}

	files := Files{
		HTML:    filepath.Join(dir, HTMLFile),
		Markers: filepath.Join(dir, MarkersFile),
	}
	if err := writeFile(files.HTML, func(w io.Writer) error { return WriteHTML(w, p) }); err != nil {
		return Files{}, err
	}
	markers := Markers(res.Placements)
	if err := writeFile(files.Markers, func(w io.Writer) error { return WriteGeoJSON(w, markers) }); err != nil {
		return Files{}, err
	}
	if fc := Boundaries(r); fc != nil {
		files.Boundary = filepath.Join(dir, BoundaryFile)
		if err := writeFile(files.Boundary, func(w io.Writer) error { return WriteGeoJSON(w, fc) }); err != nil {
			return Files{}, err
		}
	}

	zap.L().Debug("render: artifacts written",
		zap.String("dir", dir),
		zap.Int("markers", len(res.Placements)),
		zap.Bool("boundary", files.Boundary != ""),
	)
	return files, nil
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "render: create %s", path)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return eris.Wrapf(err, "render: close %s", path)
	}
	return nil
}

const pageHTML = `<!DOCTYPE html>
<html lang="es">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>
  body { margin: 0; font-family: system-ui, sans-serif; }
  header { padding: 0.75rem 1rem; background: #1f3b57; color: #fff; }
  header h1 { margin: 0 0 0.25rem; font-size: 1.2rem; }
  .metrics span { margin-right: 1.5rem; }
  #map { height: calc(100vh - 8rem); }
  details { padding: 0.5rem 1rem; font-size: 0.85rem; }
  .warn { color: #a15c00; }
</style>
</head>
<body>
<header>
  <h1>{{.Title}}</h1>
  <div class="metrics">
    <span>Registros: <b>{{.Counters.Total}}</b></span>
    <span>En el mapa: <b>{{.Counters.Placed}}</b></span>
    <span>Fuera de {{.Province}}: <b>{{.Counters.ExcludedOutside}}</b></span>
    <span>Sin ubicación: <b>{{.Counters.Unplaceable}}</b></span>
    {{- if .TopParish}}
    <span>Parroquia con más tiendas: <b>{{.TopParish}}</b></span>
    {{- end}}
  </div>
</header>
<div id="map"></div>
{{- if .Messages}}
<details>
  <summary>Detalle del proceso</summary>
  <ul>
  {{- range .Messages}}
    <li{{if eq .Level "warn"}} class="warn"{{end}}>{{.Text}}</li>
  {{- end}}
  </ul>
</details>
{{- end}}
<script>
(function () {
  var map = L.map("map").setView([{{.Center.Lat}}, {{.Center.Lon}}], {{.Zoom}});
  L.tileLayer("https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png", {
    maxZoom: 19,
    attribution: "&copy; OpenStreetMap contributors"
  }).addTo(map);

  function esc(s) {
    var d = document.createElement("div");
    d.textContent = s == null ? "" : String(s);
    return d.innerHTML;
  }

  var overlays = {};
  {{- if .Boundary}}
  var boundary = L.geoJSON({{.Boundary}}, {
    style: { color: "#3388ff", weight: 1, fillOpacity: 0.05 },
    onEachFeature: function (f, layer) {
      if (f.properties && f.properties.name) {
        layer.bindTooltip("Parroquia: " + esc(f.properties.name));
      }
    }
  }).addTo(map);
  overlays["Parroquias"] = boundary;
  {{- end}}
  {{- if .Extent}}
  map.fitBounds({{.Extent}});
  {{- end}}

  var markers = {{.Markers}};
  var group = L.layerGroup();
  markers.forEach(function (m) {
    var lines = ["<b>" + esc(m.name) + "</b>"];
    if (m.parish) { lines.push("Parroquia: " + esc(m.parish)); }
    if (m.canton) { lines.push("Cantón: " + esc(m.canton)); }
    if (m.address) { lines.push("Dirección: " + esc(m.address)); }
    L.marker([m.lat, m.lon]).bindPopup(lines.join("<br>")).addTo(group);
  });
  group.addTo(map);
  overlays["Librerías"] = group;
  L.control.layers(null, overlays).addTo(map);
})();
</script>
</body>
</html>
`
