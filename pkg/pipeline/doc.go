// Package pipeline executes pipelines: ordered lists of steps that produce and
// consume named artifacts.
//
// Execution has three phases. BuildGraph derives, per step, the variable
// names it reads and writes. Schedule partitions the resulting nodes into
// waves so that every step only depends on variables produced by strictly
// earlier waves or supplied up front. An Engine then runs the waves.
//
// Two scheduling modes share the same graph:
//
//   - Engine.Run runs each wave concurrently, bounded by the configured
//     concurrency, with a full barrier between waves. It is fail-fast: the
//     first error aborts the run. Sibling steps that already started are not
//     cancelled, so their side effects (a file write, an upload) survive even
//     though the run reports failure. There is no rollback.
//
//   - Engine.RunProgressive runs one step at a time in wave order and emits a
//     StatusEvent for every transition. A failure taints the failing step's
//     outputs; dependents are skipped while independent branches continue.
//     Cancellation is checked between steps.
//
// Neither mode retries provider calls. Errors carry a retryable flag
// (see the errors package) for callers that want to.
package pipeline
