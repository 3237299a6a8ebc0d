package models

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FingerprintBucketMS is the duration granularity of a fingerprint.
const FingerprintBucketMS = 2000

// Artist is a performer on a music service.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (a Artist) String() string {
	return fmt.Sprintf("Artist(%s): %s", a.ID, a.Name)
}

// Album is a release an artist's tracks belong to.
type Album struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	ReleaseDate *time.Time `json:"release_date,omitempty"`
}

func (a Album) String() string {
	return fmt.Sprintf("Album(%s): %s", a.ID, a.Name)
}

// Track is a single recording.
type Track struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	DurationMS  int      `json:"duration_ms"`
	ISRC        string   `json:"isrc,omitempty"`
	Album       *Album   `json:"album,omitempty"`
	Artists     []Artist `json:"artists"`
	Fingerprint string   `json:"fingerprint"`
}

// NewTrack builds a Track and computes its fingerprint.
//
// The artists slice is copied so tracks never share backing arrays.
func NewTrack(id, name string, durationMS int, isrc string, album *Album, artists []Artist) Track {
	owned := make([]Artist, len(artists))
	copy(owned, artists)

	return Track{
		ID:          id,
		Name:        name,
		DurationMS:  durationMS,
		ISRC:        isrc,
		Album:       album,
		Artists:     owned,
		Fingerprint: Fingerprint(name, durationMS),
	}
}

func (t Track) String() string {
	return fmt.Sprintf("Track(%s): %s", t.ID, t.Name)
}

// LongerThan reports whether the track runs longer than ms milliseconds.
func (t Track) LongerThan(ms int) bool {
	return t.DurationMS > ms
}

// ArtistNames joins the track's artist names for display.
func (t Track) ArtistNames() string {
	names := make([]string, 0, len(t.Artists))
	for _, a := range t.Artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

// Fingerprint derives the dedupe key of a recording from its name and duration.
//
// The name is NFKD-normalized, case-folded, trimmed, and stripped of combining marks and punctuation;
// the duration is rounded down to a [FingerprintBucketMS] bucket.
func Fingerprint(name string, durationMS int) string {
	cleaned := norm.NFKD.String(name)
	cleaned = cases.Fold().String(cleaned)
	cleaned = strings.TrimSpace(cleaned)
	cleaned, _, _ = transform.String(runes.Remove(runes.Predicate(strippable)), cleaned)

	return fmt.Sprintf("%s:%d", cleaned, durationMS-durationMS%FingerprintBucketMS)
}

// strippable matches combining marks, punctuation, and the ASCII symbols ($+<=>^`|~).
func strippable(r rune) bool {
	if unicode.Is(unicode.Mn, r) || unicode.IsPunct(r) {
		return true
	}
	return r < unicode.MaxASCII && unicode.IsSymbol(r)
}

// IDSet is a set of service IDs used for exclusion checks.
type IDSet map[string]struct{}

// NewIDSet builds a fresh set from ids.
func NewIDSet(ids ...string) IDSet {
	set := make(IDSet, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Has reports whether id is in the set. A nil set contains nothing.
func (s IDSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Add inserts id.
func (s IDSet) Add(id string) {
	s[id] = struct{}{}
}
