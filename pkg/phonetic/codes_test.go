package phonetic_test

import (
	"testing"

	"github.com/hjonck/leadscout/pkg/phonetic"
	"github.com/stretchr/testify/assert"
)

func TestCodesEmptyInput(t *testing.T) {
	c := phonetic.Codes("123 !!!")
	assert.True(t, c.Empty())
	assert.Equal(t, "", c.Soundex)
}

func TestCodesStable(t *testing.T) {
	a := phonetic.Codes("sithole")
	b := phonetic.Codes("sithole")
	assert.Equal(t, a, b)
}

func TestSoundexKnownPairs(t *testing.T) {
	// Robert and Rupert are the textbook Soundex example: both code R163.
	robert := phonetic.Codes("robert")
	rupert := phonetic.Codes("rupert")
	assert.Equal(t, "R163", robert.Soundex)
	assert.Equal(t, "R163", rupert.Soundex)
}

func TestSoundexPadsShortNames(t *testing.T) {
	c := phonetic.Codes("lee")
	assert.Len(t, c.Soundex, 4)
	assert.Equal(t, byte('L'), c.Soundex[0])
}

func TestAgreementCountsMatches(t *testing.T) {
	a := phonetic.Codes("naidoo")
	b := phonetic.Codes("naidoo")
	assert.Equal(t, phonetic.NumAlgorithms, phonetic.Agreement(a, b))

	c := phonetic.Codes("zzyyxx")
	assert.Less(t, phonetic.Agreement(a, c), phonetic.NumAlgorithms)
}

func TestFamilyKeyStableAcrossOrdering(t *testing.T) {
	a := phonetic.Code{Soundex: "S300", NYSIIS: "SNT"}
	b := phonetic.Code{Soundex: "SNT", NYSIIS: "S300"}
	assert.Equal(t, phonetic.FamilyKey(a), phonetic.FamilyKey(b))
}

func TestMatchRatingShortensLongNames(t *testing.T) {
	code := phonetic.Codes("mathebula").MatchRating
	assert.LessOrEqual(t, len(code), 6)
}

func TestNYSIISDropsTrailingS(t *testing.T) {
	c := phonetic.Codes("gates")
	assert.NotEmpty(t, c.NYSIIS)
}
