// Package repositories implements SQLite persistence for the lookup caches.
//
// Key Implementations:
//   - [BlobRepository] : one compressed blob per cache name, satisfying cache.Store
//
// Schema changes ship as embedded migrations in the shared package and are applied by shared.OpenDatabase.
package repositories
