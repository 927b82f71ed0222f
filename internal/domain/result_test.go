package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShapeTextResult(t *testing.T) {
	empty := ShapeTextResult(nil)
	require.Equal(t, CallResultEmpty, empty.Kind)
	require.Equal(t, "", empty.String())

	single := ShapeTextResult([]string{"42"})
	require.Equal(t, CallResultSingleText, single.Kind)
	text, ok := single.Text()
	require.True(t, ok)
	require.Equal(t, "42", text)
	require.Equal(t, "42", single.String())

	multi := ShapeTextResult([]string{"a", "b", "c"})
	require.Equal(t, CallResultMultiText, multi.Kind)
	require.Equal(t, []string{"a", "b", "c"}, multi.Texts)
	require.Equal(t, `["a","b","c"]`, multi.String())
	_, ok = multi.Text()
	require.False(t, ok)
}

func TestShapeTextResult_CopiesInput(t *testing.T) {
	texts := []string{"a", "b"}
	result := ShapeTextResult(texts)
	texts[0] = "mutated"
	require.Equal(t, "a", result.Texts[0])
}
