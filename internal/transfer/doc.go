// Package transfer orchestrates moving a music library between two catalog
// providers.
//
// The [Matcher] resolves individual source tracks against the destination
// catalog, ISRC first with a title/artist fallback. The [Engine] runs whole
// categories (liked songs, playlists, saved albums) through a per-category
// state machine, skipping items already present so reruns are idempotent,
// throttling writes, and collecting per-category [Outcome] values. [Report]
// turns those outcomes into a deterministic plain-text summary.
package transfer
