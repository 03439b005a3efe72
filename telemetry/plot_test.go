package telemetry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePlots(t *testing.T) {
	tests := []struct {
		name  string
		dims  int
		incs  int
		files []string
	}{
		{"line", 1, 41, []string{"field.png", "error.png"}},
		{"heat map", 2, 12, []string{"field.png", "reconstructed.png", "error.png"}},
		{"slice of 3d", 3, 6, []string{"field.png", "reconstructed.png", "error.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			om, err := NewOutputManager(dir)
			require.NoError(t, err)
			defer om.Close()

			res := runPipeline(t, tt.dims, tt.incs, 20)
			paths, err := om.WritePlots(res, "test", 4, 3)
			require.NoError(t, err)

			require.Len(t, paths, len(tt.files))
			for i, name := range tt.files {
				assert.Equal(t, filepath.Join(dir, name), paths[i])
				info, err := os.Stat(paths[i])
				require.NoError(t, err)
				assert.Positive(t, info.Size())
			}
		})
	}
}

func TestSliceGridIsLeadingSlice(t *testing.T) {
	res := runPipeline(t, 3, 4, 10)
	g := sliceGrid{axis: res.Grid.Axis(), values: res.Field}

	c, r := g.Dims()
	require.Equal(t, 4, c)
	require.Equal(t, 4, r)
	for row := 0; row < r; row++ {
		for col := 0; col < c; col++ {
			i := res.Grid.Index([]int{0, row, col})
			assert.Equal(t, res.Field[i], g.Z(col, row))
		}
	}
}
