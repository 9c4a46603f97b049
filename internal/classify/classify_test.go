package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bookmap/internal/model"
)

func sriTable(rows ...[]string) *model.Table {
	return model.NewTable("sri.csv", []string{"RAZON_SOCIAL", "CODIGO_CIIU", "ESTADO_CONTRIBUYENTE"}, rows)
}

func names(tbl *model.Table) []string {
	var out []string
	for _, r := range tbl.Rows {
		out = append(out, r.Get("RAZON_SOCIAL"))
	}
	return out
}

func TestApply_CodeAndStatus(t *testing.T) {
	t.Parallel()

	tbl := sriTable(
		[]string{"Libreria Activa", " G476101 ", "ACTIVO"},
		[]string{"Libreria Cerrada", "G476101", " inactivo "},
		[]string{"Panaderia", "C1071", "ACTIVO"},
		[]string{"Mayorista", "464993.01", " activo "},
		[]string{"Segunda Mano", "G477401", "Active"},
	)

	res := NewFilter(nil, nil).Apply(tbl)

	assert.False(t, res.Fallback)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, "CODIGO_CIIU", res.ClassificationColumn)
	assert.Equal(t, "ESTADO_CONTRIBUYENTE", res.StatusColumn)
	assert.Equal(t, 4, res.Matched)
	assert.Equal(t, 3, res.Active)
	assert.Equal(t, []string{"Libreria Activa", "Mayorista", "Segunda Mano"}, names(res.Table))
	assert.Equal(t, 2, res.CodeCounts["G476101"])
	assert.Equal(t, 0, res.CodeCounts["G4761"])
}

func TestApply_NoClassificationColumn(t *testing.T) {
	t.Parallel()

	tbl := model.NewTable("x.csv", []string{"NOMBRE"}, [][]string{{"a"}, {"b"}})
	res := NewFilter(nil, nil).Apply(tbl)

	assert.True(t, res.Fallback)
	assert.Equal(t, 2, res.Table.Len())
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "classification")
}

func TestApply_NoMatchesFallsBack(t *testing.T) {
	t.Parallel()

	tbl := sriTable(
		[]string{"Panaderia", "C1071", "ACTIVO"},
		[]string{"Ferreteria", "G4752", "ACTIVO"},
	)
	res := NewFilter(nil, nil).Apply(tbl)

	assert.True(t, res.Fallback)
	assert.Equal(t, 2, res.Table.Len())
	assert.Zero(t, res.Matched)
	require.Len(t, res.Warnings, 1)
}

func TestApply_NoStatusColumn(t *testing.T) {
	t.Parallel()

	tbl := model.NewTable("x.csv", []string{"CIIU"}, [][]string{{"G4761"}, {"X"}})
	res := NewFilter(nil, nil).Apply(tbl)

	assert.False(t, res.Fallback)
	assert.Equal(t, 1, res.Table.Len())
	assert.Empty(t, res.StatusColumn)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "status")
}

func TestApply_NoActiveRowsIsNarrated(t *testing.T) {
	t.Parallel()

	tbl := sriTable([]string{"Libreria", "G4761", "SUSPENDIDO"})
	res := NewFilter(nil, nil).Apply(tbl)

	assert.Zero(t, res.Table.Len())
	assert.Equal(t, 1, res.Matched)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "no active records")
}

func TestApply_CustomCodes(t *testing.T) {
	t.Parallel()

	tbl := sriTable(
		[]string{"Panaderia", "C1071", "ACTIVO"},
		[]string{"Libreria", "G4761", "ACTIVO"},
	)
	res := NewFilter([]string{"C1071"}, []string{" activo "}).Apply(tbl)
	assert.Equal(t, []string{"Panaderia"}, names(res.Table))
}

func TestSortedCounts(t *testing.T) {
	t.Parallel()

	r := Result{CodeCounts: map[string]int{"G4761": 1, "G476101": 3, "464993": 1}}
	got := r.SortedCounts()

	require.Len(t, got, 3)
	assert.Equal(t, "G476101", got[0].Code)
	assert.Equal(t, "464993", got[1].Code)
	assert.Equal(t, "G4761", got[2].Code)
	assert.NotEmpty(t, got[0].Description)
}
