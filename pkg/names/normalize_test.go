package names_test

import (
	"testing"

	"github.com/hjonck/leadscout/pkg/names"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name      string
		raw       string
		wantOrig  string
		wantNorm  string
		wantErrIs error
	}{
		{name: "plain", raw: "Bongani Sithole", wantOrig: "Bongani Sithole", wantNorm: "bongani sithole"},
		{name: "collapses whitespace", raw: "  Van   der   Merwe ", wantOrig: "Van   der   Merwe", wantNorm: "van der merwe"},
		{name: "strips diacritics", raw: "André Müller", wantOrig: "André Müller", wantNorm: "andre muller"},
		{name: "empty", raw: "   ", wantErrIs: names.ErrEmpty},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := names.Normalize(tc.raw)
			if tc.wantErrIs != nil {
				require.ErrorIs(t, err, tc.wantErrIs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantOrig, got.Original)
			assert.Equal(t, tc.wantNorm, got.Normalized)
		})
	}
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"van", "der", "merwe"}, names.Tokens("van der merwe"))
	assert.Equal(t, []string{"a", "b", "smith"}, names.Tokens("a b smith"))
}

func TestIsInitial(t *testing.T) {
	assert.True(t, names.IsInitial("a"))
	assert.True(t, names.IsInitial("jp"))
	assert.True(t, names.IsInitial("j."))
	assert.False(t, names.IsInitial("jan"))
	assert.False(t, names.IsInitial("123"))
}
