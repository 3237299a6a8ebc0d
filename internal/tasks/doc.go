// Package tasks generates balanced playlists from many artists' catalogs.
//
// # Pipeline
//
// [PlaylistEngine.Generate] runs one pass per service:
//
//  1. Resolve each artist with [services.Service.GetArtist]. An unknown artist aborts the run.
//  2. Fetch its top tracks and album tracks (cache-backed in the adapter).
//  3. [Curator.Curate] picks at most 15 tracks: filtered, deduplicated by fingerprint, shuffled.
//  4. [Spreader.Spread] merges every artist's picks so no artist clusters, with VIPs placed early.
//
// # Randomness
//
// The curator and spreader share one injected *rand.Rand; a fixed seed reproduces a playlist exactly.
//
// # Progress Reporting
//
// Generate sends [ProgressUpdate] values on an optional channel.
// Updates use select with default to prevent blocking.
package tasks
