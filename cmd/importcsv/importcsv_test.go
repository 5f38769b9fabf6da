package importcsv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectKind(t *testing.T) {
	t.Parallel()

	k, err := detectKind("/data/LOT001_repaird_list.csv", "")
	require.NoError(t, err)
	assert.Equal(t, "repairs", k)

	k, err = detectKind("/data/LOT001_image001.csv", "")
	require.NoError(t, err)
	assert.Equal(t, "defects", k)

	k, err = detectKind("/data/LOT001_repaird_list.csv", "defects")
	require.NoError(t, err)
	assert.Equal(t, "defects", k)

	_, err = detectKind("x.csv", "users")
	assert.Error(t, err)
}
