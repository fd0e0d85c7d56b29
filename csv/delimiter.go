package csv

import (
	"bufio"
	"io"
	"strings"

	"hermannm.dev/wrap"
)

var DefaultDelimitersToCheck = []rune{',', ';', '\t', '|', ' '}

// Used when no candidate occurs in the checked lines, as for single-column files.
const fallbackDelimiter = ','

// DeduceFieldDelimiter picks the candidate that occurs the same number of times on each of
// the first lines, preferring the one occurring most. Candidates that vary between lines
// are only picked if none is consistent. The file is rewound before returning.
func DeduceFieldDelimiter(
	csvFile io.ReadSeeker,
	maxLinesToCheck int,
	delimitersToCheck []rune,
) (delimiter rune, err error) {
	defer func() {
		if _, seekErr := csvFile.Seek(0, io.SeekStart); seekErr != nil && err == nil {
			err = wrap.Error(seekErr, "failed to rewind CSV file after deducing field delimiter")
		}
	}()

	if len(delimitersToCheck) == 0 {
		delimitersToCheck = DefaultDelimitersToCheck
	}

	candidates := make([]delimiterCandidate, len(delimitersToCheck))
	for i, delimiter := range delimitersToCheck {
		candidates[i] = delimiterCandidate{delimiter: delimiter, lowestCount: -1}
	}

	scanner := bufio.NewScanner(csvFile)
	for lines := 0; lines < maxLinesToCheck && scanner.Scan(); lines++ {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		for i := range candidates {
			candidates[i].count(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, wrap.Error(err, "failed to scan CSV file for field delimiter")
	}

	best := delimiterCandidate{delimiter: fallbackDelimiter}
	for _, candidate := range candidates {
		if candidate.betterThan(best) {
			best = candidate
		}
	}
	return best.delimiter, nil
}

type delimiterCandidate struct {
	delimiter    rune
	highestCount int
	// -1 until a line has been counted.
	lowestCount int
}

func (candidate *delimiterCandidate) count(line string) {
	count := strings.Count(line, string(candidate.delimiter))

	candidate.highestCount = max(candidate.highestCount, count)
	if candidate.lowestCount == -1 || count < candidate.lowestCount {
		candidate.lowestCount = count
	}
}

func (candidate delimiterCandidate) consistent() bool {
	return candidate.highestCount == candidate.lowestCount
}

func (candidate delimiterCandidate) betterThan(other delimiterCandidate) bool {
	if candidate.highestCount == 0 {
		return false
	}
	if other.highestCount == 0 {
		return true
	}

	switch {
	case candidate.consistent() && !other.consistent():
		return true
	case !candidate.consistent() && other.consistent():
		return false
	case candidate.consistent():
		return candidate.highestCount > other.highestCount
	default:
		// Among inconsistent candidates, prefer one present on every line.
		if (candidate.lowestCount == 0) != (other.lowestCount == 0) {
			return candidate.lowestCount != 0
		}
		return candidate.highestCount > other.highestCount
	}
}
