package identity

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_UUIDPassesThrough(t *testing.T) {
	want := uuid.New()

	got, err := Normalize(want.String())

	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestNormalize_EveryUUIDSpellingMapsToOneID(t *testing.T) {
	want := uuid.New()
	canonical := want.String()

	spellings := map[string]string{
		"canonical": canonical,
		"upper":     strings.ToUpper(canonical),
		"hex":       strings.ReplaceAll(canonical, "-", ""),
		"braced":    "{" + canonical + "}",
		"urn":       "urn:uuid:" + canonical,
	}
	for name, raw := range spellings {
		t.Run(name, func(t *testing.T) {
			got, err := Normalize(raw)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestNormalize_IntegerIsDeterministic(t *testing.T) {
	first, err := Normalize("42")
	require.NoError(t, err)

	second, err := Normalize("42")
	require.NoError(t, err)

	assert.Equal(t, first, second, "same source id must map to the same store id")
	assert.Equal(t, uuid.NewSHA1(uuid.NameSpaceDNS, []byte("user-42")), first)
	assert.Equal(t, uuid.Version(5), first.Version())
}

func TestNormalize_DistinctSourcesDoNotCollide(t *testing.T) {
	a := MustNormalize("1")
	b := MustNormalize("2")
	c := MustNormalize("alice")

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, b, c)
}

func TestNormalize_TrimsWhitespace(t *testing.T) {
	assert.Equal(t, MustNormalize("7"), MustNormalize("  7 "))
}

func TestNormalize_Empty(t *testing.T) {
	_, err := Normalize("   ")
	assert.ErrorIs(t, err, ErrEmptyID)
}

func TestNormalize_MalformedUUIDShapeIsHashed(t *testing.T) {
	raw := "zzzzzzzz-zzzz-zzzz-zzzz-zzzzzzzzzzzz"

	got, err := Normalize(raw)

	require.NoError(t, err)
	assert.Equal(t, uuid.NewSHA1(uuid.NameSpaceDNS, []byte("user-"+raw)), got)
}

func TestParseStrict(t *testing.T) {
	id := uuid.New()

	got, err := ParseStrict(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseStrict("12")
	assert.Error(t, err)

	_, err = ParseStrict("")
	assert.ErrorIs(t, err, ErrEmptyID)
}
