// Package models defines the catalog entities shared by every music service.
//
// There is exactly one struct per entity, regardless of the service it came from:
//   - [Artist] : identity is its service ID
//   - [Album] : optional release date, normalized to a calendar date by [ParseReleaseDate]
//   - [Track] : duration, optional ISRC and album, ordered artists, and a dedupe [Fingerprint]
//
// Service-specific concerns (ID canonicalization, response parsing) live with the service adapters,
// which construct these values through [NewTrack] so the fingerprint is always populated.
//
// Two tracks with the same fingerprint are the same recording for curation purposes even when their
// IDs differ, e.g. one song released on two regional catalogs.
package models
