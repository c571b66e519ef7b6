package core

import (
	"fmt"
	"sort"
	"time"
)

// Month label locales.
const (
	LocaleEnglish    = "en"
	LocalePortuguese = "pt-BR"
)

var shortMonthNames = map[string][12]string{
	LocaleEnglish:    {"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"},
	LocalePortuguese: {"jan", "fev", "mar", "abr", "mai", "jun", "jul", "ago", "set", "out", "nov", "dez"},
}

// MonthKey buckets sales by calendar month. Labels are derived from it only
// when rendering.
type MonthKey struct {
	Year  int
	Month time.Month
}

// MonthKeyOf returns the bucket of t, evaluated in UTC.
func MonthKeyOf(t time.Time) MonthKey {
	y, m, _ := t.UTC().Date()
	return MonthKey{Year: y, Month: m}
}

// ParseMonthKey parses the "2006-01" form produced by String.
func ParseMonthKey(s string) (MonthKey, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return MonthKey{}, fmt.Errorf("parse month key %q: %w", s, err)
	}
	return MonthKey{Year: t.Year(), Month: t.Month()}, nil
}

func (k MonthKey) Less(other MonthKey) bool {
	if k.Year != other.Year {
		return k.Year < other.Year
	}
	return k.Month < other.Month
}

func (k MonthKey) IsZero() bool {
	return k.Year == 0 && k.Month == 0
}

// String returns the sortable "2006-01" form.
func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

// Label returns the short month name for the locale, falling back to English.
func (k MonthKey) Label(locale string) string {
	if k.Month < time.January || k.Month > time.December {
		return k.String()
	}
	names, ok := shortMonthNames[locale]
	if !ok {
		names = shortMonthNames[LocaleEnglish]
	}
	return names[k.Month-1]
}

// LabelWithYear is Label followed by the year, for series spanning years.
func (k MonthKey) LabelWithYear(locale string) string {
	return fmt.Sprintf("%s %d", k.Label(locale), k.Year)
}

// SupportedLocale reports whether Label knows the locale.
func SupportedLocale(locale string) bool {
	_, ok := shortMonthNames[locale]
	return ok
}

// SortMonthKeys orders keys chronologically.
func SortMonthKeys(keys []MonthKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}
