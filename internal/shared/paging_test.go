package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPageLimit(t *testing.T) {
	cases := map[int]int{-3: 50, 0: 50, 1: 1, 50: 50, 200: 200, 201: 200, 10_000: 200}
	for in, want := range cases {
		require.Equal(t, want, PageLimit(in), "limit %d", in)
	}
}
