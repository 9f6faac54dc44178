package period

import (
	"fmt"
	"strings"
	"time"
)

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05-07",
	"2006-01-02 15:04:05.999999-07",
}

// ParseDate parses the date formats emitted by the source feeds.
func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", raw)
}

// Normalizer maps source dates to keys of a bounded window.
type Normalizer struct {
	window Window
}

// NewNormalizer creates a normalizer for w.
func NewNormalizer(w Window) *Normalizer {
	return &Normalizer{window: w}
}

// Window returns the window the normalizer accepts.
func (n *Normalizer) Window() Window {
	return n.window
}

// Stamp is the normalized form of one source date.
type Stamp struct {
	Key        Key
	SourceDate string
	Time       time.Time
}

// Normalize returns the period key for raw plus the literal date to persist against. A date
// outside the window yields ok=false with a nil error; an unparseable date yields an error.
func (n *Normalizer) Normalize(raw string) (Stamp, bool, error) {
	t, err := ParseDate(raw)
	if err != nil {
		return Stamp{}, false, err
	}
	if !n.window.ContainsTime(t) {
		return Stamp{}, false, nil
	}
	return Stamp{Key: KeyOf(t), SourceDate: strings.TrimSpace(raw), Time: t}, true, nil
}
