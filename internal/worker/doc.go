// Package worker runs queued jobs through the engine.
//
// The worker polls the queue on a ticker, claims the oldest queued job whose
// job-level dependencies have succeeded and executes it in process. A worker
// runs one job at a time. Start moves jobs left running by a previous worker
// back to queued, so callers hold the state database's lock file while a
// worker is running (see package lock).
//
// Job outcome mapping:
//   - Document no longer loads or validates → failed, issues in last_error
//   - Every step SUCCEEDED → succeeded
//   - Any step FAILED or CANCELLED → failed, first step error in last_error
//   - engine.job_timeout elapsed → failed, remaining steps CANCELLED
//
// Every step report goes to the configured sinks (the SQLite step tracker
// and Prometheus metrics) as it happens.
package worker
