// Package cache implements a named, time-boxed key/value store for upstream lookups.
//
// A [Cache] is loaded from its [Store] when constructed and immediately cleaned: every entry gets its own
// jittered cutoff (the base cutoff scaled by a factor in [0.8, 1.2)) so entries written together do not
// all expire together. Writes are held in memory and persisted by [Cache.Save], which callers invoke at
// shutdown; with autosave on, every [AutosaveLimit] writes also trigger a save.
//
// Persisted blobs are msgpack-encoded entry maps, gzip-compressed. Two stores ship with the package:
//   - [FileStore] : one file per cache under a root directory
//   - repositories.BlobRepository : one row per cache in SQLite
//
// A missing blob starts an empty cache. Any other load failure, including a corrupt blob, is returned by [New].
package cache
