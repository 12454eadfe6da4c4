package pg

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodePGTextArray(t *testing.T) {
	require.Nil(t, decodePGTextArray(nil))
	require.Nil(t, decodePGTextArray("{}"))
	require.Equal(t, []string{"a"}, decodePGTextArray("{a}"))
	require.Equal(t, []string{"a", "b", "c"}, decodePGTextArray("{a,b,c}"))
	require.Equal(t, []string{"example.com", "t.me"}, decodePGTextArray([]byte(`{"example.com","t.me"}`)))
	require.Nil(t, decodePGTextArray(42))
}
