// Package preflight provides readiness checks for the filesystem paths
// and resources a pipeline run depends on.
//
// These checks run in two contexts:
//   - The worker calls RunAll before starting a run. If any check fails,
//     the run is refused to avoid wasting hours on a doomed pipeline.
//   - The CLI "status" command uses the same checks to display health.
package preflight
