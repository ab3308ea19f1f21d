package fat32

import (
	_ "embed"
	"fmt"
	"testing"

	"github.com/gocarina/gocsv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//go:embed testdata/shortnames.csv
var shortNameCasesCSV string

type shortNameCase struct {
	LongName string `csv:"long_name"`
	Expected string `csv:"expected"`
}

func TestGenerateShortNameFolding(t *testing.T) {
	var cases []shortNameCase
	require.NoError(t, gocsv.UnmarshalString(shortNameCasesCSV, &cases))
	require.NotEmpty(t, cases)

	for _, c := range cases {
		t.Run(c.LongName, func(t *testing.T) {
			generated := GenerateShortName(c.LongName, nil)
			assert.Equal(t, c.Expected, generated.String())
		})
	}
}

func TestGenerateShortNameIsStable(t *testing.T) {
	first := GenerateShortName("Some File.Dat", nil)
	second := GenerateShortName("Some File.Dat", nil)
	assert.Equal(t, first, second)
}

func TestGenerateShortNameCollisionSuffixes(t *testing.T) {
	taken := map[ShortName]bool{}

	for i := 0; i < 4; i++ {
		name := fmt.Sprintf("longprefixed file %d.txt", i)
		generated := GenerateShortName(name, taken)
		require.False(t, taken[generated], "%q collided", name)
		taken[generated] = true

		if i > 0 {
			assert.Equal(t,
				fmt.Sprintf("LONGPR~%d.TXT", i), generated.String(),
				"collision %d should get a numeric tail", i)
		}
	}
}

func TestGenerateShortNameFallsBackToHashedStem(t *testing.T) {
	taken := map[ShortName]bool{}

	// Exhaust the plain candidate and the ~1..~4 range for one prefix.
	var last ShortName
	for i := 0; i < 8; i++ {
		last = GenerateShortName("collision.txt", taken)
		require.False(t, taken[last])
		taken[last] = true
	}

	// By now the stem is the four-digit hash form.
	rendered := last.String()
	assert.Regexp(t, `^[0-9A-F]{4}~[0-9]+\.TXT$`, rendered)
}

func TestGenerateShortNameNeverProducesDotEntries(t *testing.T) {
	generated := GenerateShortName("...", nil)
	assert.False(t, generated.IsDot())
}

func TestShortNameStringAndBytes(t *testing.T) {
	short := MustShortName("HELLO", "TXT")
	assert.Equal(t, "HELLO.TXT", short.String())

	raw := short.Bytes()
	assert.Equal(t, []byte("HELLO   TXT"), raw[:])

	parsed := ShortNameFromBytes(raw)
	assert.Equal(t, short, parsed)
}

func TestShortNameWithoutExtension(t *testing.T) {
	short := MustShortName("README", "")
	assert.Equal(t, "README", short.String())
}
