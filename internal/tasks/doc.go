// Package tasks runs Spotify → YouTube Music playlist conversions as background jobs.
//
// # Admission
//
// [Orchestrator.Submit] admits a conversion when the source URL is set, the number of
// active job markers is below the configured ceiling and the YouTube Music service
// answers its health check. Admission is serialized inside one process, so a single
// instance never exceeds the ceiling. Across instances sharing a marker index the
// ceiling is soft.
//
// # Pipeline
//
// Each admitted job runs in its own goroutine and moves through
//
//	started → fetching-source → creating-playlist → converting-tracks → completed
//
// writing status and progress to the [JobStore] at every stage. Any stage may end in
// failed, cancelled or interrupted instead. Those statuses are terminal and the store
// refuses any later write, which is the backstop that keeps a cancelled job from
// being completed.
//
// Tracks are searched one at a time in playlist order, paced by a rate limiter. A track
// that cannot be matched is recorded on the result and never fails the job.
//
// # Cancellation
//
// [Orchestrator.Cancel] flags the job in a process-local [CancellationSet] and writes
// the cancelled status synchronously. The pipeline checks the set between stages and
// between tracks, so cancellation takes effect at the next check point rather than
// in the middle of an upstream call.
//
// # Recovery
//
// [Orchestrator.Recover] marks jobs left behind by a dead process as interrupted and
// [Orchestrator.Drain] does the same for this process's jobs at shutdown.
//
// # Progress Reporting
//
// Besides the persisted progress, an optional channel receives [ProgressUpdate] events.
// Sends never block the pipeline; updates are dropped when the channel is full.
package tasks
