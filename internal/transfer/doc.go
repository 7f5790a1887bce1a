// Package transfer reconciles a named photo set against a destination store
// and verifies the result.
//
// Reconciler and Verifier each run their per-photo work on a bounded errgroup
// and write results into slots indexed like the input, so results come back
// in input order whatever the concurrency.
package transfer
