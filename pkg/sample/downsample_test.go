package sample

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/itohio/gofreqmeter/pkg/pagestore"
)

func TestDownsample(t *testing.T) {
	hundred := make([]int, 100)
	for i := range hundred {
		hundred[i] = i
	}

	tests := []struct {
		name string
		src  []int
		max  int
		want []int
	}{
		{name: "short series is copied", src: []int{1, 2, 3}, max: 10, want: []int{1, 2, 3}},
		{name: "zero keeps all", src: []int{1, 2, 3}, max: 0, want: []int{1, 2, 3}},
		{name: "first and last kept", src: []int{1, 2, 3, 4, 5, 6}, max: 3, want: []int{1, 3, 6}},
		{name: "single point", src: []int{7, 8, 9}, max: 1, want: []int{7}},
		{name: "even spacing", src: hundred, max: 10, want: []int{0, 11, 22, 33, 44, 55, 66, 77, 88, 99}},
		{name: "empty", src: nil, max: 10, want: []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Downsample(nil, tt.src, tt.max)
			assert.Len(t, got, len(tt.want))
			if len(tt.want) > 0 {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestDownsampleReusesDst(t *testing.T) {
	src := []pagestore.Value{{Raw: 1, Valid: true}, {}, {Raw: 3, Valid: true}, {Raw: 4, Valid: true}}
	dst := make([]pagestore.Value, 3, 8)

	got := Downsample(dst, src, 2)
	assert.Equal(t, []pagestore.Value{{Raw: 1, Valid: true}, {Raw: 4, Valid: true}}, got)
	assert.Equal(t, cap(dst), cap(got))
	assert.Same(t, &dst[0], &got[0])
}
