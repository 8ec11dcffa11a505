package tracker

import (
	"cmp"
	"slices"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidPersistence is returned for a negative persistence or a
	// window span below one
	ErrInvalidPersistence = errors.New("invalid persistence configuration")
	// ErrInvalidFilterConfiguration is returned for a missing outdated
	// detector or an unusable Kalman model
	ErrInvalidFilterConfiguration = errors.New("invalid filter configuration")
)

// FindOutdated tracks how many consecutive frames each ID has been missing
// and reports the IDs whose absence exceeded the persistence threshold
type FindOutdated[K cmp.Ordered] struct {
	// persistence is the number of consecutive misses an ID survives
	persistence int
	// ages holds the frames since each tracked ID was last seen
	ages map[K]int
}

// NewFindOutdated returns a detector that evicts an ID on its
// persistence+1'th consecutive miss
func NewFindOutdated[K cmp.Ordered](persistence int) (*FindOutdated[K], error) {

	if persistence < 0 {
		return nil, errors.Wrapf(ErrInvalidPersistence, "persistence %d is negative", persistence)
	}

	return &FindOutdated[K]{
		persistence: persistence,
		ages:        make(map[K]int),
	}, nil
}

// SetPersistence changes the threshold used by future calls to Update.  Ages
// already accumulated are kept
func (f *FindOutdated[K]) SetPersistence(persistence int) error {

	if persistence < 0 {
		return errors.Wrapf(ErrInvalidPersistence, "persistence %d is negative", persistence)
	}

	f.persistence = persistence
	return nil
}

// Persistence returns the current threshold
func (f *FindOutdated[K]) Persistence() int {
	return f.persistence
}

// Update records the IDs seen in the current frame and returns, in ascending
// order, the IDs evicted by this call.  The current IDs and the tracked IDs
// are walked together in sorted order: new IDs start at age zero, seen IDs
// are reset to zero and missing IDs are evicted once their age has reached
// the persistence, otherwise aged by one
func (f *FindOutdated[K]) Update(current []K) []K {

	seen := slices.Clone(current)
	slices.Sort(seen)
	seen = slices.Compact(seen)

	tracked := make([]K, 0, len(f.ages))

	for id := range f.ages {
		tracked = append(tracked, id)
	}

	slices.Sort(tracked)

	var evicted []K
	i, j := 0, 0

	for i < len(seen) || j < len(tracked) {

		switch {
		case j == len(tracked) || (i < len(seen) && seen[i] < tracked[j]):
			// first sighting
			f.ages[seen[i]] = 0
			i++

		case i == len(seen) || tracked[j] < seen[i]:
			// missed this frame
			id := tracked[j]

			if f.ages[id] >= f.persistence {
				delete(f.ages, id)
				evicted = append(evicted, id)
			} else {
				f.ages[id]++
			}

			j++

		default:
			f.ages[seen[i]] = 0
			i++
			j++
		}
	}

	return evicted
}

// Age returns the number of consecutive frames id has been missing and
// whether it is tracked at all
func (f *FindOutdated[K]) Age(id K) (int, bool) {
	age, ok := f.ages[id]
	return age, ok
}

// Len returns the number of tracked IDs
func (f *FindOutdated[K]) Len() int {
	return len(f.ages)
}

// Reset forgets every tracked ID
func (f *FindOutdated[K]) Reset() {
	f.ages = make(map[K]int)
}
