package lockstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"github.com/ValentinKolb/srvcoord/lib/store"
	"slices"
	"strings"
)

// --------------------------------------------------------------------------
// Mode
// --------------------------------------------------------------------------

// Mode is the mode a resource is locked in.
type Mode string

const (
	// ModeNone is the mode of a free resource. It is never stored.
	ModeNone Mode = ""
	// ModeShared allows any number of shared holders at the same time.
	ModeShared Mode = "shared"
	// ModeExclusive allows exactly one holder and no shared holders.
	ModeExclusive Mode = "exclusive"
)

// ModeOf returns ModeExclusive if exclusive is set, else ModeShared.
func ModeOf(exclusive bool) Mode {
	if exclusive {
		return ModeExclusive
	}
	return ModeShared
}

// Valid reports whether m is a mode a lock can be requested in.
func (m Mode) Valid() bool {
	return m == ModeShared || m == ModeExclusive
}

func (m Mode) String() string {
	if m == ModeNone {
		return "free"
	}
	return string(m)
}

// --------------------------------------------------------------------------
// Record
// --------------------------------------------------------------------------

// ErrNotAdmissible is returned by Record.Acquire if the record does not admit the requested mode.
var ErrNotAdmissible = errors.New("lock not admissible")

// Record is the lock state of a single resource.
// The zero value is a free resource. Records are values, every transition returns a new record.
type Record struct {
	Mode    Mode     `json:"mode"`
	Holders []string `json:"holders"`
}

// Free returns a free record.
func Free() Record {
	return Record{}
}

// Shared returns a shared record with one entry per given holder.
// A holder that is listed twice holds two shared locks on the resource.
func Shared(holders ...string) Record {
	return Record{Mode: ModeShared, Holders: normalizeHolders(holders)}
}

// Exclusive returns an exclusive record held by holder.
func Exclusive(holder string) Record {
	return Record{Mode: ModeExclusive, Holders: []string{holder}}
}

// IsFree reports whether nobody holds the resource.
func (r Record) IsFree() bool {
	return r.Mode == ModeNone
}

// Admits reports whether a lock in mode m can be granted on top of r.
// An exclusive lock requires a free resource, a shared lock requires a resource
// that is not held exclusively.
func (r Record) Admits(m Mode) bool {
	switch m {
	case ModeExclusive:
		return r.IsFree()
	case ModeShared:
		return r.IsFree() || r.Mode == ModeShared
	default:
		return false
	}
}

// HeldBy reports whether holder holds the resource in mode m.
func (r Record) HeldBy(m Mode, holder string) bool {
	return r.Count(m, holder) > 0
}

// Count returns how many locks in mode m holder has on the resource.
func (r Record) Count(m Mode, holder string) int {
	if r.Mode != m {
		return 0
	}
	i, found := slices.BinarySearch(r.Holders, holder)
	if !found {
		return 0
	}
	n := 0
	for _, h := range r.Holders[i:] {
		if h != holder {
			break
		}
		n++
	}
	return n
}

// Acquire returns the record after holder was granted a lock in mode m.
// Every shared acquisition adds an entry, also if holder already holds the resource,
// so two jobs running under the same identity do not share a single lock.
func (r Record) Acquire(m Mode, holder string) (Record, error) {
	if !r.Admits(m) {
		return r, fmt.Errorf("%w: %s requested, resource is %s", ErrNotAdmissible, m, r)
	}
	if m == ModeExclusive {
		return Exclusive(holder), nil
	}
	return Shared(append(slices.Clone(r.Holders), holder)...), nil
}

// Release returns the record after holder gave up one lock in mode m.
// The boolean return value is false if holder did not hold the resource in mode m,
// in that case r is returned unchanged. Releasing the last entry yields a free record.
func (r Record) Release(m Mode, holder string) (Record, bool) {
	if !r.HeldBy(m, holder) {
		return r, false
	}
	if m == ModeExclusive {
		return Free(), true
	}
	i, _ := slices.BinarySearch(r.Holders, holder)
	remaining := slices.Delete(slices.Clone(r.Holders), i, i+1)
	if len(remaining) == 0 {
		return Free(), true
	}
	return Record{Mode: ModeShared, Holders: remaining}, true
}

// Distinct returns every holder once, sorted.
func (r Record) Distinct() []string {
	return slices.Compact(slices.Clone(r.Holders))
}

// Validate checks the structural invariants of a record:
// a free record has no holders, a shared record has at least one, an exclusive record exactly one.
func (r Record) Validate() error {
	switch r.Mode {
	case ModeNone:
		if len(r.Holders) != 0 {
			return fmt.Errorf("free record with %d holders", len(r.Holders))
		}
	case ModeShared:
		if len(r.Holders) == 0 {
			return errors.New("shared record without holders")
		}
		if !slices.IsSorted(r.Holders) {
			return errors.New("shared holders are not sorted")
		}
	case ModeExclusive:
		if len(r.Holders) != 1 {
			return fmt.Errorf("exclusive record with %d holders", len(r.Holders))
		}
	default:
		return fmt.Errorf("unknown mode %q", r.Mode)
	}
	for _, h := range r.Holders {
		if h == "" {
			return errors.New("empty holder")
		}
	}
	return nil
}

// String returns e.g. "exclusive (alice@host)" or "shared (alice@host, bob@host)".
func (r Record) String() string {
	if r.IsFree() {
		return "free"
	}
	return fmt.Sprintf("%s (%s)", r.Mode, strings.Join(r.Holders, ", "))
}

// --------------------------------------------------------------------------
// Codec
// --------------------------------------------------------------------------

// Encode returns the stored representation of r. A free record encodes to nil,
// which means "no key" for the store.
func Encode(r Record) ([]byte, error) {
	if r.IsFree() {
		return nil, nil
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("encode lock record: %w", err)
	}
	return json.Marshal(r)
}

// Decode parses a stored value. A nil value decodes to a free record.
// Values that cannot be parsed or violate the record invariants are reported as store.ErrCorruptRecord.
func Decode(value []byte) (Record, error) {
	if value == nil {
		return Free(), nil
	}
	var r Record
	if err := json.Unmarshal(value, &r); err != nil {
		return Free(), store.WrapError(store.RetCCorruptRecord, err, "decode lock record %q", value)
	}
	if r.IsFree() {
		return Free(), store.NewError(store.RetCCorruptRecord, "stored lock record without mode")
	}
	if err := r.Validate(); err != nil {
		return Free(), store.WrapError(store.RetCCorruptRecord, err, "invalid lock record %q", value)
	}
	return r, nil
}

// normalizeHolders sorts holders and keeps duplicates.
func normalizeHolders(holders []string) []string {
	out := slices.Clone(holders)
	slices.Sort(out)
	return out
}
