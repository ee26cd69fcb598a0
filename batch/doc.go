// Package batch runs sequential jobs against the single thread connection
// pool, guarded by advisory lock files.
//
// A job declares its name and the names of jobs it cannot overlap with.
// Runner.Run creates <dir>/<name>.lock, fails if that file or the lock of a
// blocking job exists, runs the job with the pool enabled and always
// releases the pooled connections and the lock file afterwards.
package batch
