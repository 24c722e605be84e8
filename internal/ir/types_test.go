package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseAccessTypeSynonyms(t *testing.T) {
	tests := []struct {
		in   string
		want AccessType
	}{
		{"field", AccessField},
		{"initializeOnly", AccessField},
		{"exposedField", AccessExposedField},
		{"inputOutput", AccessExposedField},
		{"eventIn", AccessEventIn},
		{"inputOnly", AccessEventIn},
		{"eventOut", AccessEventOut},
		{"outputOnly", AccessEventOut},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAccessType(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseAccessType("input")
	assert.Error(t, err)
}

func TestAccessTypeRoles(t *testing.T) {
	assert.True(t, AccessEventOut.CanEmit())
	assert.True(t, AccessExposedField.CanEmit())
	assert.False(t, AccessEventIn.CanEmit())
	assert.False(t, AccessField.CanEmit())

	assert.True(t, AccessEventIn.CanReceive())
	assert.True(t, AccessExposedField.CanReceive())
	assert.False(t, AccessEventOut.CanReceive())
	assert.False(t, AccessField.CanReceive())

	assert.True(t, AccessField.Initializable())
	assert.False(t, AccessEventIn.Initializable())
}

func TestParseDataTypeRoundTrip(t *testing.T) {
	for dt := SFBoolType; dt <= MFNodeType; dt++ {
		got, err := ParseDataType(dt.String())
		require.NoError(t, err, dt.String())
		assert.Equal(t, dt, got)
	}

	_, err := ParseDataType("SFImage")
	assert.Error(t, err)
	assert.Equal(t, "DataType(99)", DataType(99).String())
}

func TestDataTypeClassification(t *testing.T) {
	assert.True(t, SFNodeType.IsNodeType())
	assert.True(t, MFNodeType.IsNodeType())
	assert.False(t, SFVec3fType.IsNodeType())

	assert.True(t, MFBoolType.IsMulti())
	assert.True(t, MFNodeType.IsMulti())
	assert.False(t, SFNodeType.IsMulti())
}

func TestNodeIDString(t *testing.T) {
	assert.Equal(t, "NULL", NullNode.String())
	assert.Equal(t, "#12", NodeID(12).String())
	assert.True(t, NullNode.IsNull())
}

func TestTypesYAMLText(t *testing.T) {
	var decl InterfaceDecl
	err := yaml.Unmarshal([]byte("access: inputOnly\ntype: SFFloat\nname: set_speed\n"), &decl)
	require.NoError(t, err)
	assert.Equal(t, AccessEventIn, decl.Access)
	assert.Equal(t, SFFloatType, decl.Type)

	out, err := yaml.Marshal(decl)
	require.NoError(t, err)
	assert.Contains(t, string(out), "access: eventIn")
	assert.Contains(t, string(out), "type: SFFloat")
}
