// Package queue persists jobs, media assets, and settings in SQLite.
//
// Jobs carry their stage plan as a JSON array of StageState values; the
// job-level status is derived from the stages. Assets are keyed by content,
// so ingesting identical bytes twice converges on one row. The settings
// table is a small KV store for provider credentials and the root password
// hash.
//
// All writes retry on SQLITE_BUSY with a short exponential backoff so lane
// workers and the CLI can share one database file under WAL.
package queue
