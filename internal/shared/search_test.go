package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLikePatternEscapesWildcards(t *testing.T) {
	cases := map[string]string{
		"":          "%%",
		"led":       "%led%",
		"100%":      `%100\%%`,
		"2_gang":    `%2\_gang%`,
		`C:\wiring`: `%C:\\wiring%`,
		`50%_\`:     `%50\%\_\\%`,
	}
	for term, want := range cases {
		require.Equal(t, want, LikePattern(term), term)
	}
}

func TestPrefixPatternAnchorsAtStart(t *testing.T) {
	require.Equal(t, "as%", PrefixPattern("as"))
	require.Equal(t, `0300\_%`, PrefixPattern("0300_"))
}
