package bucket

import (
	"fmt"
	"path/filepath"
	"strconv"
	"time"
)

// RelPath returns the bucket location for the hour containing t, relative to
// the store root: /{YYYY}/{MM}/{DD}/{YYYY}-{MM}-{DD}-{HH}.
func RelPath(t time.Time) string {
	y, m, d := t.Date()
	return fmt.Sprintf("/%04d/%02d/%02d/%04d-%02d-%02d-%02d", y, m, d, y, m, d, t.Hour())
}

// Path joins RelPath(t) under root.
func Path(root string, t time.Time) string {
	return filepath.Join(root, filepath.FromSlash(RelPath(t)))
}

// Tier is the retention class of a bucket's month.
type Tier int

const (
	// TierCurrent buckets are left untouched.
	TierCurrent Tier = iota
	// TierPrevious buckets keep one file per day.
	TierPrevious
	// TierOlder buckets are deleted.
	TierOlder
	// TierAncient year trees are removed whole.
	TierAncient
)

func (t Tier) String() string {
	switch t {
	case TierCurrent:
		return "current"
	case TierPrevious:
		return "previous"
	case TierOlder:
		return "older"
	case TierAncient:
		return "ancient"
	default:
		return "tier(" + strconv.Itoa(int(t)) + ")"
	}
}

// ClassifyYear reports whether a whole year directory is ancient.
func ClassifyYear(year int, now time.Time) (Tier, bool) {
	if year < now.Year()-1 {
		return TierAncient, true
	}
	return 0, false
}

// Classify returns the tier of a month directory in a non-ancient year.
// January has no previous month in the same year, so December of last year
// falls into TierOlder.
func Classify(year, month int, now time.Time) Tier {
	if tier, ok := ClassifyYear(year, now); ok {
		return tier
	}
	nowMonth := int(now.Month())
	switch {
	case year == now.Year() && month >= nowMonth:
		return TierCurrent
	case year == now.Year() && month == nowMonth-1:
		return TierPrevious
	default:
		return TierOlder
	}
}
