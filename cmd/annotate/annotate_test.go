package annotate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kent2980/aoi-data-manager/internal/annotate"
	"github.com/kent2980/aoi-data-manager/internal/errors"
)

func TestResolveImage(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	name := "Y8470722R_20_CN-SNDDJ0CJ_411CA_S面.jpg"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))

	p, err := resolveImage(options{image: "/x.png"}, "/stored.png", "1234567-20", "Y8470722R")
	require.NoError(t, err)
	assert.Equal(t, "/x.png", p)

	p, err = resolveImage(options{imageDir: dir}, "/stored.png", "1234567-20", "Y8470722R")
	require.NoError(t, err)
	assert.Equal(t, "/stored.png", p)

	p, err = resolveImage(options{imageDir: dir}, "", "1234567-20", "Y8470722R")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, name), p)

	_, err = resolveImage(options{}, "", "1234567-20", "Y8470722R")
	assert.True(t, errors.IsValidation(err))
}

func TestApplyFlags(t *testing.T) {
	t.Parallel()

	o := annotate.Options{Format: annotate.PNG}
	require.NoError(t, applyFlags(&o, options{filename: "out", format: "BMP", maxSize: "640*480"}))
	assert.Equal(t, "out", o.Filename)
	assert.Equal(t, annotate.BMP, o.Format)
	assert.Equal(t, annotate.Size{Width: 640, Height: 480}, o.MaxSize)

	err := applyFlags(&o, options{maxSize: "0x0"})
	assert.True(t, errors.IsValidation(err))
}
