package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyOfAndParseKey(t *testing.T) {
	k := KeyOf(time.Date(2025, time.March, 17, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, Key("Mar-25"), k)

	m, y, err := ParseKey(k)
	require.NoError(t, err)
	assert.Equal(t, time.March, m)
	assert.Equal(t, 2025, y)

	_, _, err = ParseKey("March-2025")
	assert.Error(t, err)
	_, _, err = ParseKey("Foo-25")
	assert.Error(t, err)
}

func TestSortIsChronologicalNotLexicographic(t *testing.T) {
	keys := []Key{"Jan-26", "Dec-25", "Apr-25", "Aug-25", "Feb-25"}
	Sort(keys)
	assert.Equal(t, []Key{"Feb-25", "Apr-25", "Aug-25", "Dec-25", "Jan-26"}, keys)
	assert.True(t, Less("Dec-24", "Jan-25"))
	assert.False(t, Less("Jan-25", "Dec-24"))
}

func TestDefaultWindowKeys(t *testing.T) {
	w := DefaultWindow(2025)
	keys := w.Keys()
	require.Len(t, keys, 27)
	assert.Equal(t, Key("Oct-24"), keys[0])
	assert.Equal(t, Key("Dec-26"), keys[len(keys)-1])
	assert.True(t, w.Contains("Jan-25"))
	assert.False(t, w.Contains("Sep-24"))
	assert.False(t, w.Contains("Jan-27"))
}

func TestNewWindowRejectsInvertedRange(t *testing.T) {
	_, err := NewWindow(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)

	w, err := NewWindow(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []Key{"Jan-25", "Feb-25", "Mar-25"}, w.Keys())
}

func TestNormalize(t *testing.T) {
	n := NewNormalizer(DefaultWindow(2025))

	tests := []struct {
		name    string
		raw     string
		wantKey Key
		wantOK  bool
		wantErr bool
	}{
		{"iso date", "2025-03-01", "Mar-25", true, false},
		{"timestamp keeps literal", "2025-03-15T00:00:00", "Mar-25", true, false},
		{"rfc3339", "2025-11-03T08:00:00Z", "Nov-25", true, false},
		{"window start", "2024-10-01", "Oct-24", true, false},
		{"before window dropped", "2024-09-30", "", false, false},
		{"after window dropped", "2027-01-01", "", false, false},
		{"garbage", "03/15/2025", "", false, true},
		{"empty", "", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stamp, ok, err := n.Normalize(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantKey, stamp.Key)
			if ok {
				assert.Equal(t, tt.raw, stamp.SourceDate)
			}
		})
	}
}
