package tools

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDescriptor(t *testing.T) *ActionFunctionDescriptor {
	t.Helper()
	d, err := NewActionFunctionDescriptor("function-eol", "EOL", "https://fn.example/eol",
		TypeRef{Type: "text"},
		[]Parameter{
			{Name: "program", Type: "eol"},
			{Name: "xmi", Type: "xmi", InstanceOf: "ecore"},
			{Name: "ecore", Type: "ecore"},
			{Name: "language", Type: "text"},
		})
	require.NoError(t, err)
	return d
}

func TestDescriptorAccessors(t *testing.T) {
	d := newTestDescriptor(t)

	assert.Equal(t, "function-eol", d.ID())
	assert.Equal(t, "EOL", d.Name())
	assert.Equal(t, "https://fn.example/eol", d.Path())
	assert.Equal(t, "text", d.ReturnType().Type)

	params := d.Parameters()
	require.Len(t, params, 4)
	assert.Equal(t, "program", params[0].Name)

	t.Run("参数副本不影响描述", func(t *testing.T) {
		params[0].Name = "changed"
		assert.Equal(t, "program", d.Parameters()[0].Name)
	})
}

func TestDescriptorParameterType(t *testing.T) {
	d := newTestDescriptor(t)

	typ, err := d.ParameterType("xmi")
	require.NoError(t, err)
	assert.Equal(t, "xmi", typ)

	_, err = d.ParameterType("missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDescriptorParametersMatchingType(t *testing.T) {
	d := newTestDescriptor(t)

	matched := d.ParametersMatchingType("text")
	require.Len(t, matched, 1)
	assert.Equal(t, "language", matched[0].Name)
	assert.Empty(t, d.ParametersMatchingType("flexmi"))
}

func TestDescriptorInstanceOf(t *testing.T) {
	d := newTestDescriptor(t)

	name, ok := d.InstanceOfParamName("xmi")
	assert.True(t, ok)
	assert.Equal(t, "ecore", name)

	_, ok = d.InstanceOfParamName("program")
	assert.False(t, ok)

	_, ok = d.InstanceOfReturnType()
	assert.False(t, ok)

	withReturn, err := NewActionFunctionDescriptor("f", "F", "/f", TypeRef{Type: "xmi", InstanceOf: "ecore"}, nil)
	require.NoError(t, err)
	ret, ok := withReturn.InstanceOfReturnType()
	assert.True(t, ok)
	assert.Equal(t, "ecore", ret)
}

func TestDescriptorRejectsDuplicateParameters(t *testing.T) {
	_, err := NewActionFunctionDescriptor("f", "F", "/f", TypeRef{Type: "text"}, []Parameter{
		{Name: "a", Type: "t1"},
		{Name: "a", Type: "t2"},
	})
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	_, err = NewActionFunctionDescriptor("", "F", "/f", TypeRef{}, nil)
	assert.ErrorAs(t, err, &cfgErr)
}

func TestDescriptorSet(t *testing.T) {
	set := NewDescriptorSet()
	require.NoError(t, set.Add(newTestDescriptor(t)))
	assert.Error(t, set.Add(newTestDescriptor(t)))

	d, ok := set.Get("function-eol")
	assert.True(t, ok)
	assert.Equal(t, "EOL", d.Name())

	_, ok = set.Get("missing")
	assert.False(t, ok)
	assert.Len(t, set.List(), 1)
}

func TestReturnTypeConfigUnmarshal(t *testing.T) {
	var fn FunctionConfig
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a","returnType":"text"}`), &fn))
	assert.Equal(t, "text", fn.ReturnType.Type)

	require.NoError(t, json.Unmarshal([]byte(`{"id":"b","returnType":{"type":"xmi","instanceOf":"ecore"}}`), &fn))
	assert.Equal(t, "xmi", fn.ReturnType.Type)
	assert.Equal(t, "ecore", fn.ReturnType.InstanceOf)

	var legacy FunctionConfig
	require.NoError(t, json.Unmarshal([]byte(`{"id":"c","returnType":"xmi","returnTypeInstanceOf":"ecore","path":"/c"}`), &legacy))
	d, err := legacy.ToDescriptor("/c")
	require.NoError(t, err)
	ret, ok := d.InstanceOfReturnType()
	assert.True(t, ok)
	assert.Equal(t, "ecore", ret)
}
