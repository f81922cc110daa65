// Package repositories provides persistence for conversion jobs and active job markers.
//
// [JobRepository] stores jobs in SQLite and guards terminal states with a
// conditional write. Active job markers live either in SQLite
// ([ActiveJobRepository]) or in Redis ([RedisActiveJobIndex]) when several
// processes share one capacity pool.
package repositories
