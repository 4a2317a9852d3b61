package precluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frameconnect/internal/models"
)

func TestCompress(t *testing.T) {
	tests := []struct {
		name   string
		labels []int
		want   []int
		k      int
	}{
		{"Empty", []int{}, []int{}, 0},
		{"AlreadyDense", []int{1, 2, 2, 3}, []int{1, 2, 2, 3}, 3},
		{"Gaps", []int{10, 4, 10, 99}, []int{2, 1, 2, 3}, 3},
		{"Single", []int{7, 7, 7}, []int{1, 1, 1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, k := Compress(tt.labels)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.k, k)
		})
	}
}

func TestOrganize(t *testing.T) {
	locs := []models.Localization{
		{X: 1, Frame: 5, Dataset: 1},
		{X: 2, Frame: 2, Dataset: 1},
		{X: 3, Frame: 9, Dataset: 1},
		{X: 4, Frame: 2, Dataset: 1},
	}
	labels := []int{2, 2, 1, 2}

	clusters := Organize(locs, labels)
	require.Len(t, clusters, 2)

	assert.Equal(t, 1, clusters[0].TrackID)
	assert.Equal(t, 1, clusters[0].Len())

	c := clusters[1]
	assert.Equal(t, 2, c.TrackID)
	require.Equal(t, 3, c.Len())
	assert.Equal(t, []int{1, 3, 0}, []int{c.Members[0].Index, c.Members[1].Index, c.Members[2].Index})
	assert.Equal(t, 2, c.FirstFrame())
	assert.Equal(t, 5, c.LastFrame())
	assert.Equal(t, 4, c.Duration())
	assert.Equal(t, 2, c.Observations())
	for _, m := range c.Members {
		assert.Equal(t, 2, m.TrackID)
	}
}
