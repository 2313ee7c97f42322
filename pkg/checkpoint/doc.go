// Package checkpoint saves and restores collection pagination state.
//
// After every page that advances the cursor the harvester saves the next
// cursor, the ids seen so far, the per-page counts and the raw items
// collected. A later run with resume enabled continues from that cursor
// instead of page one. The checkpoint is removed once the collection is
// exhausted.
//
// Files live in the per-user data directory:
//   - Linux: $XDG_DATA_HOME/civharvest/checkpoints/ or ~/.local/share/civharvest/checkpoints/
//   - macOS: ~/Library/Application Support/civharvest/checkpoints/
//   - Windows: %APPDATA%/civharvest/checkpoints/
//
// Writes go through a temp file and rename so a crash never leaves a
// truncated checkpoint.
package checkpoint
