// Package janitor bounds the shared asset cache by file age and total size.
//
// A Janitor runs one cleanup cycle immediately on Start and then on a fixed
// interval until Stop. Each cycle removes files older than the maximum age,
// then, if the directory still exceeds its byte budget, removes the oldest
// files by modification time until it fits.
//
// The janitor does not know which files running jobs reference. Jobs hold
// hard links or copies of shared files, so evicting a shared file does not
// disturb a job that already materialized it; a job between publish and
// materialize can lose the race. Budgets and ages are expected to be large
// relative to job lifetimes. WithExclude is the hook for callers that track
// references.
//
// Cycles never fail: listing, stat and remove errors are logged and the
// cycle moves on.
package janitor
