package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/creditmeter/internal/catalog"
)

const catalogYAML = `
meta:
  currency: EUR
  currency_per_credit: 0.026
  rounding_step: 0.5
  initial_credits: 500
operations:
  - key: free_chat
    unit: message
    unmetered: true
  - key: flat_image
    display_name: Flat Image
    unit: image
    flat_rate: 1.54
  - key: variant_video
    unit: second
    variants:
      - name: without_audio
        rate: 7.69
      - name: with_audio
        rate: 15.38
  - key: upscale
    unit: image
    tiers:
      - max: 4
        rate: 1.92
      - max: 25
        rate: 15.38
        open_ended: true
  - key: llm_tokens
    unit: token
    tokens:
      denomination: per_million
      input_rate: 1.85
      output_rate: 11.1
      threshold: 200000
      input_rate_above: 3.7
      output_rate_above: 18.5
`

func writeCatalogFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	cat, err := catalog.LoadFile(writeCatalogFile(t, catalogYAML))
	require.NoError(t, err)

	require.Equal(t, "EUR", cat.Meta().Currency)
	require.Equal(t, "0.5", cat.Meta().RoundingStep.String())

	op, ok := cat.Find("flat_image")
	require.True(t, ok)
	require.Equal(t, catalog.ModeFlat, op.Mode)
	require.Equal(t, "1.54", op.FlatRate.String())
	require.Equal(t, "Flat Image", op.DisplayName)

	op, ok = cat.Find("variant_video")
	require.True(t, ok)
	require.Len(t, op.Variants, 2)
	require.Equal(t, "15.38", op.Variants[1].Rate.String())

	op, ok = cat.Find("upscale")
	require.True(t, ok)
	require.True(t, op.Tiers[1].OpenEnded)

	op, ok = cat.Find("llm_tokens")
	require.True(t, ok)
	require.Equal(t, catalog.ModeTokenBased, op.Mode)
	require.EqualValues(t, 200_000, op.Tokens.Threshold)
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := catalog.LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadFile_InvalidYAML(t *testing.T) {
	_, err := catalog.LoadFile(writeCatalogFile(t, "meta: [broken"))
	require.Error(t, err)
}

func TestLoadFile_MalformedCatalog(t *testing.T) {
	// Parseable YAML, invalid pricing table: variant with no rate.
	doc := `
meta:
  currency: EUR
  currency_per_credit: 0.026
  rounding_step: 0.5
operations:
  - key: broken
    unit: second
    variants:
      - name: hd
`
	_, err := catalog.LoadFile(writeCatalogFile(t, doc))
	require.ErrorIs(t, err, catalog.ErrMalformed)
}
