// Package schema identifies the semantic role of free-form column names.
//
// Registry exports carry no fixed schema: headers vary in case, language and
// punctuation. Each semantic field has an explicit ordered list of rules; a
// rule is a predicate over a normalized column name. Rules are tried in
// order and, for each rule, columns in header order; the first hit wins.
package schema

import (
	"slices"
	"strings"
	"unicode"

	"github.com/mozillazg/go-unidecode"
)

// Field is a semantic column role.
type Field string

const (
	FieldClassification Field = "classification"
	FieldStatus         Field = "status"
	FieldLatitude       Field = "latitude"
	FieldLongitude      Field = "longitude"
	FieldParish         Field = "parish"
	FieldCanton         Field = "canton"
	FieldProvince       Field = "province"
	FieldName           Field = "name"
	FieldAddress        Field = "address"
)

// AllFields lists every field in detection order.
var AllFields = []Field{
	FieldClassification,
	FieldStatus,
	FieldLatitude,
	FieldLongitude,
	FieldParish,
	FieldCanton,
	FieldProvince,
	FieldName,
	FieldAddress,
}

// Column is a header name in normalized form.
type Column struct {
	Raw        string
	Normalized string   // ASCII-folded, lowercase, separators collapsed to "_"
	Tokens     []string // Normalized split on "_"
}

// NormalizeColumn folds accents, lowercases and splits a header into tokens.
func NormalizeColumn(raw string) Column {
	folded := strings.ToLower(unidecode.Unidecode(strings.TrimSpace(raw)))
	tokens := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return Column{
		Raw:        raw,
		Normalized: strings.Join(tokens, "_"),
		Tokens:     tokens,
	}
}

// Rule is one name-matching predicate.
type Rule struct {
	Description string
	Match       func(Column) bool
}

func equals(name string) Rule {
	return Rule{
		Description: "equals " + name,
		Match:       func(c Column) bool { return c.Normalized == name },
	}
}

func contains(sub string) Rule {
	return Rule{
		Description: "contains " + sub,
		Match:       func(c Column) bool { return strings.Contains(c.Normalized, sub) },
	}
}

func hasPrefix(prefix string) Rule {
	return Rule{
		Description: "starts with " + prefix,
		Match:       func(c Column) bool { return strings.HasPrefix(c.Normalized, prefix) },
	}
}

func token(names ...string) Rule {
	return Rule{
		Description: "has token " + strings.Join(names, "|"),
		Match: func(c Column) bool {
			for _, t := range c.Tokens {
				if slices.Contains(names, t) {
					return true
				}
			}
			return false
		},
	}
}

// Single-letter aliases ("x", "y") only match as whole tokens so that
// names like ESTADO_CONTRIBUYENTE never read as a coordinate axis.
var rules = map[Field][]Rule{
	FieldClassification: {
		contains("ciiu"),
		contains("classification"),
		contains("clasificacion"),
	},
	FieldStatus: {
		equals("estado_contribuyente"),
		token("estado", "status", "state"),
		contains("estado"),
	},
	FieldLatitude: {
		token("lat", "latitud", "latitude"),
		hasPrefix("latitud"),
		token("y"),
	},
	FieldLongitude: {
		token("lon", "lng", "long", "longitud", "longitude"),
		hasPrefix("longitud"),
		token("x"),
	},
	FieldParish: {
		equals("descripcion_parroquia_est"),
		contains("parroq"),
		contains("parish"),
	},
	FieldCanton: {
		equals("descripcion_canton_est"),
		contains("canton"),
	},
	FieldProvince: {
		equals("descripcion_provincia_est"),
		contains("provincia"),
		contains("province"),
	},
	FieldName: {
		equals("razon_social"),
		equals("nombre_comercial"),
		token("nombre", "name"),
		contains("razon"),
	},
	FieldAddress: {
		contains("direccion"),
		token("address", "calle"),
	},
}

// Detect returns the header playing role f, if any.
func Detect(headers []string, f Field) (string, bool) {
	cols := make([]Column, len(headers))
	for i, h := range headers {
		cols[i] = NormalizeColumn(h)
	}
	return detect(cols, f)
}

func detect(cols []Column, f Field) (string, bool) {
	for _, r := range rules[f] {
		for _, c := range cols {
			if c.Normalized != "" && r.Match(c) {
				return c.Raw, true
			}
		}
	}
	return "", false
}

// Columns maps each detected field to its header.
type Columns map[Field]string

// DetectAll runs detection for every field. A header is assigned to at most
// one coordinate axis so a single "lat_lon" style column cannot serve both.
func DetectAll(headers []string) Columns {
	cols := make([]Column, len(headers))
	for i, h := range headers {
		cols[i] = NormalizeColumn(h)
	}
	out := make(Columns, len(AllFields))
	for _, f := range AllFields {
		if name, ok := detect(cols, f); ok {
			out[f] = name
		}
	}
	if lat, ok := out[FieldLatitude]; ok && out[FieldLongitude] == lat {
		delete(out, FieldLongitude)
	}
	return out
}

// Get returns the header for f or "".
func (c Columns) Get(f Field) string {
	return c[f]
}

// Has reports whether f was detected.
func (c Columns) Has(f Field) bool {
	_, ok := c[f]
	return ok
}
