// Package vizflow implements an asynchronous, deduplicating resource cache
// and render pipeline for expensive visualizations.
//
// # Philosophy: Share the Work, Not the Failure
//
// Every visualization request passes through the same three-stage pipeline:
// dependency load, payload resolution, render execution. Each stage is
// expensive (script/module injection, network fetch, engine draw) and each
// stage's result is reusable, so the framework guarantees at-most-once
// execution per key:
//
//   - Dependency Loader: one load per engine name, process-wide. Concurrent
//     callers share the in-flight load. Failures are retryable, never
//     poisoned.
//   - Payload Resolver: one resolution per (kind, identifier), process-wide.
//     Payloads are style-independent, so all style variants of the same
//     identifier share one cached payload.
//   - Global Success Cache: completed renders are recorded by fingerprint
//     (identity + full style), letting future mounts skip straight to the
//     draw against their own surface.
//
// Failures are scoped: one instance's error never corrupts another instance's
// pipeline, and a failed stage leaves its dedup table clean so the next
// caller retries from scratch.
//
// # Layers
//
//   - fingerprint: deterministic key derivation over identity + style
//   - loader: at-most-once engine module loading
//   - resolver: identity-keyed payload resolution (fetch or conversion)
//   - render: narrow engine capability set and the idempotent draw sequence
//   - pipeline: per-mount instance state machine and the process-wide caches
//   - gateway: HTTP/websocket service surface
//
// Supporting packages (errors, pkg/cache, pkg/retry, metric, config) provide
// classified error handling, bounded LRU caching with always-on statistics,
// exponential backoff, and Prometheus metrics.
package vizflow
