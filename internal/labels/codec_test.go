package labels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/rxcompass/internal/apperr"
)

func TestFitSortsAndDeduplicates(t *testing.T) {
	c := Fit([]string{"Malaria", "Flu", "Malaria", "Acne", "Flu"})

	assert.Equal(t, []string{"Acne", "Flu", "Malaria"}, c.Classes())
	id, ok := c.Encode("Flu")
	assert.True(t, ok)
	assert.Equal(t, 1, id)
}

func TestDecode(t *testing.T) {
	c := Fit([]string{"Flu", "Acne"})

	label, err := c.Decode(1)
	require.NoError(t, err)
	assert.Equal(t, "Flu", label)

	for _, id := range []int{-1, 2, 99} {
		_, err := c.Decode(id)
		require.Error(t, err)
		assert.Equal(t, apperr.Decode, apperr.KindOf(err))
	}
}

func TestDecodeAll(t *testing.T) {
	c := Fit([]string{"Flu", "Acne"})

	got, err := c.DecodeAll([]int{1, 0, 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Flu", "Acne", "Flu"}, got)

	_, err = c.DecodeAll([]int{0, 5})
	assert.Error(t, err)
}

func TestEncodeOrSentinel(t *testing.T) {
	c := Fit([]string{"Flu", "Acne"})
	assert.Equal(t, []int{1, Unseen, 0}, c.EncodeOrSentinel([]string{"Flu", "Gout", "Acne"}))
}

func TestLoadRoundTrip(t *testing.T) {
	c := Fit([]string{"Typhoid", "Flu"})
	data, err := c.Marshal()
	require.NoError(t, err)

	loaded, err := Load(data)
	require.NoError(t, err)
	assert.Equal(t, c.Classes(), loaded.Classes())
}

func TestLoadRejectsBadArtifacts(t *testing.T) {
	tests := map[string]string{
		"not yaml":   "classes: [unterminated",
		"empty":      "classes: []",
		"duplicates": "classes: [Flu, Flu]",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load([]byte(doc))
			assert.Error(t, err)
		})
	}
}
