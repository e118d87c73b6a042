package directive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func partialResult(typ, group string, part int, col string) *ResultDefinition {
	return &ResultDefinition{
		Base:    Base{MappingType: typ, PartialPart: part, PartialGroup: group},
		Columns: []string{col},
	}
}

func TestCombineResults_PassThrough(t *testing.T) {
	defs := []*ResultDefinition{
		{Base: Base{MappingType: AutoType}, Columns: []string{"a"}},
		{Base: Base{MappingType: "int"}, Columns: []string{"b"}},
	}

	out, err := CombineResults(defs)
	require.NoError(t, err)
	assert.Equal(t, defs, out)
}

func TestCombineResults_OrderIndependent(t *testing.T) {
	for _, input := range []string{
		"select a {xyz%%@1}, b {xyz%%@2} from t",
		"select b {xyz%%@2}, a {xyz%%@1} from t",
	} {
		t.Run(input, func(t *testing.T) {
			stmt, err := Compile(input, false)
			require.NoError(t, err)
			require.Len(t, stmt.Results, 1)

			r := stmt.Results[0]
			assert.Equal(t, "xyz", r.MappingType)
			assert.Equal(t, []string{"a", "b"}, r.Columns)
			assert.Zero(t, r.PartialPart)
			assert.Empty(t, r.PartialGroup)
		})
	}
}

func TestCombineResults_Groups(t *testing.T) {
	defs := []*ResultDefinition{
		partialResult("money", "price", 2, "price_ccy"),
		partialResult("money", "cost", 1, "cost_amt"),
		partialResult("money", "price", 1, "price_amt"),
		partialResult("money", "cost", 2, "cost_ccy"),
		partialResult("money", "", 1, "plain_amt"),
	}
	defs[2].FieldPath = []string{"price"}
	defs[3].FieldPath = []string{"ignored"}

	out, err := CombineResults(defs)
	require.NoError(t, err)
	require.Len(t, out, 3)

	// ungrouped sorts first
	assert.Equal(t, []string{"plain_amt"}, out[0].Columns)
	assert.Equal(t, []string{"cost_amt", "cost_ccy"}, out[1].Columns)
	assert.Empty(t, out[1].FieldPath, "scalar fields come from part 1")
	assert.Equal(t, []string{"price_amt", "price_ccy"}, out[2].Columns)
	assert.Equal(t, []string{"price"}, out[2].FieldPath)

	// inputs are not modified
	assert.Equal(t, 2, defs[0].PartialPart)
	assert.Equal(t, []string{"price_ccy"}, defs[0].Columns)
}

func TestCombineResults_Duplicate(t *testing.T) {
	_, err := Compile("select a {xyz%%@1}, b {xyz%%@1} from t", false)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicatePartial)
	assert.Contains(t, err.Error(), "duplicate partial definition")

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestCombineResults_SamePartDifferentGroups(t *testing.T) {
	_, err := Compile("select a {xyz%%@1[g1]}, b {xyz%%@1[g2]} from t", false)
	assert.NoError(t, err)
}

func TestCombineResults_Gaps(t *testing.T) {
	tests := []struct {
		name string
		defs []*ResultDefinition
	}{
		{
			name: "missing middle part",
			defs: []*ResultDefinition{
				partialResult("xyz", "", 1, "a"),
				partialResult("xyz", "", 3, "c"),
			},
		},
		{
			name: "missing first part",
			defs: []*ResultDefinition{
				partialResult("xyz", "", 2, "b"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := CombineResults(tt.defs)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrPartialGap)
		})
	}
}

func TestCombineParameters(t *testing.T) {
	defs := []*ParameterDefinition{
		{Base: Base{MappingType: "range", PartialPart: 2}, ParameterIndex: 1, SQLIndexes: []int{1}},
		{Base: Base{MappingType: AutoType}, ParameterIndex: 2, SQLIndexes: []int{2}},
		{Base: Base{MappingType: "range", PartialPart: 1}, ParameterIndex: 1, FieldPath: []string{"span"}, SQLIndexes: []int{3}},
	}

	out, err := CombineParameters(defs)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, 2, out[0].ParameterIndex)
	assert.Equal(t, "range", out[1].MappingType)
	assert.Equal(t, []int{3, 1}, out[1].SQLIndexes)
	assert.Equal(t, []string{"span"}, out[1].FieldPath)
	assert.Empty(t, out[1].SQLNames)
}

func TestCombineParameters_NamedBinds(t *testing.T) {
	defs := []*ParameterDefinition{
		{Base: Base{MappingType: "money", PartialPart: 2, PartialGroup: "g"}, ParameterIndex: 1, SQLNames: []string{"ccy"}},
		{Base: Base{MappingType: "money", PartialPart: 1, PartialGroup: "g"}, ParameterIndex: 1, SQLNames: []string{"amount"}},
		{Base: Base{MappingType: AutoType}, ParameterIndex: 2, SQLNames: []string{"id"}},
	}

	out, err := CombineParameters(defs)
	require.NoError(t, err)
	require.Len(t, out, 2)

	assert.Equal(t, []string{"id"}, out[0].SQLNames)
	assert.Equal(t, []string{"amount", "ccy"}, out[1].SQLNames)
	assert.Empty(t, out[1].SQLIndexes)
	assert.Zero(t, out[1].PartialPart)
	assert.Empty(t, out[1].PartialGroup)

	// the input definitions are left untouched
	assert.Equal(t, []string{"ccy"}, defs[0].SQLNames)
}
