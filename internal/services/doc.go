// Package services defines the [Service] interface for music streaming providers and implements it for Spotify and Apple Music.
//
// # Service Interface
//
// The playlist engine only needs four things from a provider: resolve an artist, list its top tracks,
// list every track on its albums, and write an ordered list of track IDs into a named playlist.
// Each adapter also knows how to reduce user input (URLs, URIs) to its own IDs via SanitizeID.
//
// # Registry
//
// [DefaultRegistry] maps a service name from the config to a [Factory]. There is no runtime discovery;
// adding a provider means adding an entry.
//
// # Spotify Implementation
//
// [SpotifyService] wraps the zmb3/spotify client behind an [oauth2.Transport].
// Tokens come from the config file; refreshed tokens are reported through a callback so the CLI can write them back.
//
// # Apple Music Implementation
//
// [AppleMusicService] talks to the Apple Music API over plain HTTP with an ES256 developer token.
// The library API cannot remove tracks from a playlist, so Sync empties it through the Music app
// and polls until the deletion shows up before posting the new tracks.
//
// # Caching
//
// Both adapters keep raw API responses in a [cache.Cache] under keys such as "artist:<id>",
// "top-tracks:<id>", "artist:<id>:albums", and "album:<id>:tracks".
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrNotAuthenticated] : Login() not called
//   - [shared.ErrArtistNotFound] : GetArtist could not resolve the ID; fatal for a run
//   - [shared.ErrPlaylistNotFound] : Sync target does not exist in the user's library
//   - [shared.ErrAPIRequest] : HTTP request failed
//
// Fetch failures in ArtistTopTracks and ArtistTracks are logged and produce an empty list.
// Only cache persistence failures escape.
package services
