package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDatePrefix_FormatsMonthAsThreeLetterAbbreviation(t *testing.T) {
	date := time.Date(2025, time.July, 20, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "GRN/2025/JUL/20/", datePrefix("GRN", date))
}

func TestDatePrefix_PadsSingleDigitDay(t *testing.T) {
	date := time.Date(2025, time.January, 5, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "LOT/2025/JAN/05/", datePrefix("LOT", date))
}

func TestTrailingInt_ExtractsSuffixNumber(t *testing.T) {
	n, ok := trailingInt("GRN/2025/JUL/20/3")
	assert.True(t, ok)
	assert.Equal(t, 3, n)
}

func TestTrailingInt_RejectsNonNumericSuffix(t *testing.T) {
	_, ok := trailingInt("GRN/2025/JUL/20/abc")
	assert.False(t, ok)
}

func TestTrailingInt_RejectsMissingSeparator(t *testing.T) {
	_, ok := trailingInt("not-an-identifier")
	assert.False(t, ok)
}

func TestTrailingInt_RejectsZeroAndNegative(t *testing.T) {
	_, ok := trailingInt("GRN/2025/JUL/20/0")
	assert.False(t, ok)

	_, ok = trailingInt("GRN/2025/JUL/20/-1")
	assert.False(t, ok)
}
