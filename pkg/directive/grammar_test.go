package directive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch_Parameter(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantType  string
		wantIndex int
		wantField []string
		wantPart  int
		wantGroup string
	}{
		{name: "plain", input: "%1", wantType: AutoType, wantIndex: 1},
		{name: "typed", input: "int%2", wantType: "int", wantIndex: 2},
		{name: "field", input: "int%2.field", wantType: "int", wantIndex: 2, wantField: []string{"field"}},
		{name: "nested field", input: "%3.address.zip_code", wantType: AutoType, wantIndex: 3, wantField: []string{"address", "zip_code"}},
		{name: "partial", input: "xyz%1@2", wantType: "xyz", wantIndex: 1, wantPart: 2},
		{name: "partial group", input: "my-type_2%10.a@1[g1]", wantType: "my-type_2", wantIndex: 10, wantField: []string{"a"}, wantPart: 1, wantGroup: "g1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Match(tt.input)
			require.NoError(t, err)
			p, ok := d.(*ParameterDefinition)
			require.True(t, ok, "expected parameter definition, got %T", d)

			assert.Equal(t, KindParameter, p.Kind())
			assert.Equal(t, tt.wantType, p.MappingType)
			assert.Equal(t, tt.wantIndex, p.ParameterIndex)
			assert.Equal(t, tt.wantField, p.FieldPath)
			assert.Equal(t, tt.wantPart, p.PartialPart)
			assert.Equal(t, tt.wantGroup, p.PartialGroup)
		})
	}
}

func TestMatch_Result(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType string
		wantCtor int
		wantKey  bool
		wantPath []string
		wantPart int
		wantGrp  string
	}{
		{name: "bare", input: "%%", wantType: AutoType},
		{name: "field", input: "%%.name", wantType: AutoType, wantPath: []string{"name"}},
		{name: "constructor", input: "int%%1", wantType: "int", wantCtor: 1},
		{name: "map key", input: "%%*", wantType: AutoType, wantKey: true},
		{name: "partial group", input: "xyz%%@1[g]", wantType: "xyz", wantPart: 1, wantGrp: "g"},
		{name: "field partial", input: "money%%.total@2", wantType: "money", wantPath: []string{"total"}, wantPart: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Match(tt.input)
			require.NoError(t, err)
			r, ok := d.(*ResultDefinition)
			require.True(t, ok, "expected result definition, got %T", d)

			assert.Equal(t, KindResult, r.Kind())
			assert.Equal(t, tt.wantType, r.MappingType)
			assert.Equal(t, tt.wantCtor, r.ConstructorParameterIndex)
			assert.Equal(t, tt.wantKey, r.IsMapKey)
			assert.Equal(t, tt.wantPath, r.FieldPath)
			assert.Equal(t, tt.wantPart, r.PartialPart)
			assert.Equal(t, tt.wantGrp, r.PartialGroup)
		})
	}
}

func TestMatch_Rejects(t *testing.T) {
	inputs := []string{
		"",
		"abc",
		"%",
		"%a",
		"%0",
		"%%0",
		"%1.",
		"%1.9x",
		"%1x",
		"%%*x",
		"%%.a.",
		"%1@",
		"%1@0",
		"%1@1[",
		"%1@1[]",
		"%1@1[g",
		"%1@1[g]x",
		"a.b%1",
		"%%%",
		"%99999999999999999999999",
	}

	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			_, err := Match(in)
			assert.Error(t, err, "Match(%q) should fail", in)
		})
	}
}
