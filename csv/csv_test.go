package csv_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"hermannm.dev/cubes/csv"
)

func TestDeduceFieldDelimiter(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected rune
	}{
		{"comma", "year,country,quantity\n2000,France,4\n2001,Spain,2\n", ','},
		{"semicolon with commas in values", "year;quantity\n2000;4,5\n2001;2\n", ';'},
		{"tab", "year\tcountry\n2000\tFrance\n", '\t'},
		{"pipe", "year|country|region\n2000|France|Bretagne\n", '|'},
		{"single column", "year\n2000\n2001\n", ','},
		{"inconsistent", "a,b;c\nd,e,f;g;h\n", ','},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			delimiter, err := csv.DeduceFieldDelimiter(
				strings.NewReader(testCase.input), 20, csv.DefaultDelimitersToCheck,
			)
			require.NoError(t, err)
			assert.Equal(t, string(testCase.expected), string(delimiter))
		})
	}
}

func TestReaderReadsRowsAfterDeducing(t *testing.T) {
	input := "\uFEFFyear; country ;quantity\n2000;France;4\n2001;Spain;2\n"

	reader, err := csv.NewReader(strings.NewReader(input), false)
	require.NoError(t, err)
	assert.Equal(t, ';', reader.Delimiter())

	header, err := reader.ReadHeaderRow()
	require.NoError(t, err)
	assert.Equal(t, []string{"year", "country", "quantity"}, header)

	row, rowNumber, done, err := reader.ReadRow()
	require.NoError(t, err)
	assert.False(t, done)
	assert.Equal(t, 2, rowNumber)
	assert.Equal(t, []string{"2000", "France", "4"}, row)

	_, _, _, err = reader.ReadRow()
	require.NoError(t, err)

	_, _, done, err = reader.ReadRow()
	require.NoError(t, err)
	assert.True(t, done)

	_, err = reader.ReadHeaderRow()
	assert.ErrorContains(t, err, "after reading previous rows")
}

func TestReaderSkipsHeaderRow(t *testing.T) {
	reader, err := csv.NewReader(strings.NewReader("a,b\n1,2\n"), true)
	require.NoError(t, err)

	row, rowNumber, _, err := reader.ReadRow()
	require.NoError(t, err)
	assert.Equal(t, 2, rowNumber)
	assert.Equal(t, []string{"1", "2"}, row)
}

func TestReaderEmptyFile(t *testing.T) {
	reader, err := csv.NewReader(strings.NewReader(""), false)
	require.NoError(t, err)

	_, err = reader.ReadHeaderRow()
	assert.ErrorContains(t, err, "ended before header row")
}

func TestReaderReportsMalformedRows(t *testing.T) {
	reader, err := csv.NewReader(strings.NewReader("a,b\n1,2,3\n"), true)
	require.NoError(t, err)

	_, _, _, err = reader.ReadRow()
	assert.ErrorContains(t, err, "failed to parse CSV row 2")
}
