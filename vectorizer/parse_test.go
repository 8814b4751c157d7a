package vectorizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTerms(t *testing.T) {
	labels := []string{"Teff", "logg", "feh"}

	t.Run("polynomial with cross terms", func(t *testing.T) {
		terms, err := ParseTerms("Teff^4 + logg*Teff^3 + feh + feh^0*Teff", labels)
		require.NoError(t, err)

		want := Terms{
			{{Index: 0, Power: 4}},
			{{Index: 1, Power: 1}, {Index: 0, Power: 3}},
			{{Index: 2, Power: 1}},
			{{Index: 0, Power: 1}},
		}
		assert.Equal(t, want, terms)
	})

	t.Run("repeated labels sum their powers", func(t *testing.T) {
		terms, err := ParseTerms("Teff*Teff^2", labels)
		require.NoError(t, err)
		assert.Equal(t, Terms{{{Index: 0, Power: 3}}}, terms)
	})

	t.Run("whitespace is tolerated", func(t *testing.T) {
		terms, err := ParseTerms("  Teff ^2 *  logg + feh ", labels)
		require.NoError(t, err)
		assert.Equal(t, Terms{
			{{Index: 0, Power: 2}, {Index: 1, Power: 1}},
			{{Index: 2, Power: 1}},
		}, terms)
	})

	t.Run("fractional powers", func(t *testing.T) {
		terms, err := ParseTerms("Teff^2.5", labels)
		require.NoError(t, err)
		assert.Equal(t, Terms{{{Index: 0, Power: 2.5}}}, terms)
	})

	t.Run("zero powers cancel", func(t *testing.T) {
		_, err := ParseTerms("feh^0", labels)
		assert.ErrorIs(t, err, ErrNoTerms)

		_, err = ParseTerms("feh*feh^-1", labels)
		assert.ErrorIs(t, err, ErrNoTerms)
	})

	t.Run("unknown label", func(t *testing.T) {
		_, err := ParseTerms("Teff + vsini", labels)
		var unknown *ErrUnknownLabel
		require.ErrorAs(t, err, &unknown)
		assert.Equal(t, "vsini", unknown.Name)
	})

	t.Run("empty term", func(t *testing.T) {
		_, err := ParseTerms("Teff + + feh", labels)
		assert.Error(t, err)
	})

	t.Run("invalid power", func(t *testing.T) {
		_, err := ParseTerms("Teff^x", labels)
		assert.Error(t, err)
	})
}

func TestDescribeRoundTrip(t *testing.T) {
	labels := []string{"Teff", "logg", "feh"}

	for _, desc := range []string{
		"Teff + logg + feh",
		"Teff^4 + logg*Teff^3 + feh^2.5",
		"Teff*logg*feh + Teff^2",
	} {
		terms, err := ParseTerms(desc, labels)
		require.NoError(t, err)

		rendered := terms.Describe(labels)
		reparsed, err := ParseTerms(rendered, labels)
		require.NoError(t, err)
		assert.Equal(t, terms, reparsed, "description %q", desc)
	}
}

func TestBuildTerms(t *testing.T) {
	t.Run("quadratic with full cross terms", func(t *testing.T) {
		desc := BuildTerms([]string{"a", "b"}, 2, 1)
		terms, err := ParseTerms(desc, []string{"a", "b"})
		require.NoError(t, err)

		// a, b, a^2, a*b, b^2
		assert.Len(t, terms, 5)
	})

	t.Run("cross term order zero disables cross terms", func(t *testing.T) {
		desc := BuildTerms([]string{"a", "b"}, 3, 0)
		terms, err := ParseTerms(desc, []string{"a", "b"})
		require.NoError(t, err)

		for _, term := range terms {
			assert.Len(t, term, 1)
		}
	})

	t.Run("negative cross term order defaults to order-1", func(t *testing.T) {
		assert.Equal(t, BuildTerms([]string{"a", "b"}, 3, 2), BuildTerms([]string{"a", "b"}, 3, -1))
	})

	t.Run("linear", func(t *testing.T) {
		assert.Equal(t, "a + b", BuildTerms([]string{"a", "b"}, 1, -1))
	})
}
