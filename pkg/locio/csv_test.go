package locio

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frameconnect/internal/models"
)

func TestRead(t *testing.T) {
	t.Run("MinimalColumns", func(t *testing.T) {
		in := "x,y,sigma_x,sigma_y,frame\n1.5,2.5,0.02,0.03,4\n3,4,0.01,0.01,5\n"
		locs, err := Read(strings.NewReader(in))
		require.NoError(t, err)
		require.Len(t, locs, 2)

		want := models.Localization{X: 1.5, Y: 2.5, SigmaX: 0.02, SigmaY: 0.03, Frame: 4, Dataset: 1, ID: 1}
		assert.Equal(t, want, locs[0])
		assert.Equal(t, 2, locs[1].ID)
	})

	t.Run("ColumnOrderAndCase", func(t *testing.T) {
		in := "Frame, Sigma_Y, extra, Y, X, SIGMA_X, dataset\n7, 0.1, ignored, 2, 1, 0.2, 3\n"
		locs, err := Read(strings.NewReader(in))
		require.NoError(t, err)
		require.Len(t, locs, 1)
		assert.Equal(t, 7, locs[0].Frame)
		assert.Equal(t, 3, locs[0].Dataset)
		assert.Equal(t, 1.0, locs[0].X)
		assert.Equal(t, 0.2, locs[0].SigmaX)
		assert.Equal(t, 0.1, locs[0].SigmaY)
	})

	t.Run("FloatFrame", func(t *testing.T) {
		locs, err := Read(strings.NewReader("x,y,sigma_x,sigma_y,frame\n1,1,1,1,12.0\n"))
		require.NoError(t, err)
		assert.Equal(t, 12, locs[0].Frame)
	})

	t.Run("Empty", func(t *testing.T) {
		locs, err := Read(strings.NewReader(""))
		require.NoError(t, err)
		assert.Empty(t, locs)
	})

	t.Run("MissingColumn", func(t *testing.T) {
		_, err := Read(strings.NewReader("x,y,sigma_x,frame\n1,1,1,1\n"))
		assert.ErrorIs(t, err, ErrMissingColumn)
	})

	t.Run("BadNumber", func(t *testing.T) {
		_, err := Read(strings.NewReader("x,y,sigma_x,sigma_y,frame\n1,abc,1,1,1\n"))
		var pErr *ParseError
		require.True(t, errors.As(err, &pErr))
		assert.Equal(t, "y", pErr.Column)
		assert.Equal(t, 2, pErr.Line)
	})

	t.Run("FractionalFrame", func(t *testing.T) {
		_, err := Read(strings.NewReader("x,y,sigma_x,sigma_y,frame\n1,1,1,1,2.5\n"))
		assert.Error(t, err)
	})
}

func TestWriteReadRoundTrip(t *testing.T) {
	locs := []models.Localization{
		{X: 1.25, Y: -3.5, SigmaX: 0.02, SigmaY: 0.025, SigmaXY: 1e-5, Photons: 1200, SigmaPhotons: 35,
			Background: 4.5, SigmaBackground: 0.5, Frame: 3, Dataset: 2, TrackID: 7, ID: 11},
		{X: 0.1, Y: 0.2, SigmaX: 0.3, SigmaY: 0.4, Frame: 1, Dataset: 1, TrackID: 1, ID: 12},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, locs))
	assert.True(t, strings.HasPrefix(buf.String(), strings.Join(Columns, ",")+"\n"))

	got, err := Read(&buf)
	require.NoError(t, err)
	if diff := cmp.Diff(locs, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locs.csv")
	locs := []models.Localization{{X: 1, Y: 2, SigmaX: 0.1, SigmaY: 0.1, Frame: 1, Dataset: 1, ID: 1}}
	require.NoError(t, WriteFile(path, locs))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, locs, got)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
