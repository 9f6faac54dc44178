// Package period converts source dates into canonical month keys and orders them.
package period

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Key identifies one calendar month, formatted "Mon-YY" (for example "Mar-25").
type Key string

// monthOrder is the only ordering authority for keys. Keys must never be compared as strings.
var monthOrder = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

var monthIndex = func() map[string]time.Month {
	idx := make(map[string]time.Month, len(monthOrder))
	for i, name := range monthOrder {
		idx[strings.ToLower(name)] = time.Month(i + 1)
	}
	return idx
}()

// KeyOf returns the key of the month containing t.
func KeyOf(t time.Time) Key {
	return Key(fmt.Sprintf("%s-%02d", monthOrder[t.Month()-1], t.Year()%100))
}

// ParseKey splits a key into month and four-digit year. Two-digit years are read as 20YY.
func ParseKey(k Key) (time.Month, int, error) {
	parts := strings.Split(string(k), "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid period key %q", k)
	}
	month, ok := monthIndex[strings.ToLower(parts[0])]
	if !ok {
		return 0, 0, fmt.Errorf("invalid month in period key %q", k)
	}
	yy, err := strconv.Atoi(parts[1])
	if err != nil || len(parts[1]) != 2 {
		return 0, 0, fmt.Errorf("invalid year in period key %q", k)
	}
	return month, 2000 + yy, nil
}

// Month returns the calendar month of k, or zero for a malformed key.
func (k Key) Month() time.Month {
	m, _, err := ParseKey(k)
	if err != nil {
		return 0
	}
	return m
}

// Year returns the four-digit year of k, or zero for a malformed key.
func (k Key) Year() int {
	_, y, err := ParseKey(k)
	if err != nil {
		return 0
	}
	return y
}

// Start returns the first instant of the month k names.
func (k Key) Start() (time.Time, error) {
	m, y, err := ParseKey(k)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC), nil
}

func (k Key) ordinal() int {
	m, y, err := ParseKey(k)
	if err != nil {
		return -1
	}
	return y*12 + int(m) - 1
}

// Less orders keys chronologically using the month table and numeric year.
func Less(a, b Key) bool {
	return a.ordinal() < b.ordinal()
}

// Sort orders keys chronologically in place.
func Sort(keys []Key) {
	sort.SliceStable(keys, func(i, j int) bool { return Less(keys[i], keys[j]) })
}

// Window is an inclusive range of months.
type Window struct {
	Start time.Time
	End   time.Time
}

// DefaultWindow spans October of referenceYear-1 through December of referenceYear+1.
func DefaultWindow(referenceYear int) Window {
	return Window{
		Start: time.Date(referenceYear-1, time.October, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(referenceYear+1, time.December, 1, 0, 0, 0, 0, time.UTC),
	}
}

// NewWindow builds a window from any two dates; both are truncated to their month.
func NewWindow(start, end time.Time) (Window, error) {
	w := Window{Start: monthStart(start), End: monthStart(end)}
	if w.End.Before(w.Start) {
		return Window{}, fmt.Errorf("window end %s is before start %s", KeyOf(end), KeyOf(start))
	}
	return w, nil
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Keys returns every month of the window in chronological order.
func (w Window) Keys() []Key {
	var keys []Key
	for t := monthStart(w.Start); !t.After(w.End); t = t.AddDate(0, 1, 0) {
		keys = append(keys, KeyOf(t))
	}
	return keys
}

// Contains reports whether the month of k lies inside the window.
func (w Window) Contains(k Key) bool {
	start, err := k.Start()
	if err != nil {
		return false
	}
	return !start.Before(monthStart(w.Start)) && !start.After(monthStart(w.End))
}

// ContainsTime reports whether the month of t lies inside the window.
func (w Window) ContainsTime(t time.Time) bool {
	m := monthStart(t)
	return !m.Before(monthStart(w.Start)) && !m.After(monthStart(w.End))
}

func (w Window) String() string {
	return fmt.Sprintf("%s..%s", KeyOf(w.Start), KeyOf(w.End))
}
