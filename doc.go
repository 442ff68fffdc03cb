// Package main hosts the cadwatch service entrypoint.
//
// Architecture overview:
//   - Polling loop: internal/poller drives one cycle per configured interval.
//     Each cycle fetches the county's live incident board via the Colly-based
//     fetcher, parses the unstructured markup into incident records, filters
//     them by municipality, reconciles against remembered state, and publishes
//     what changed.
//   - Parsing: internal/cad flattens the board's table soup into text lines
//     and reassembles six-line incident blocks, resolving per-incident comment
//     links for unit extraction. Garbled or stale blocks are counted and
//     dropped rather than failing the cycle.
//   - Dedup & persistence: internal/dedup classifies each parsed incident as
//     new, updated, or unchanged against a keyed snapshot map, evicting
//     entries whose dispatch time falls outside the retention window. The map
//     starts empty on each run; configuring the file or Postgres state
//     provider carries it across restarts.
//   - Fanout: internal/publisher/mqtt delivers one JSON message per new or
//     updated incident, plus an optional retained board-wide summary. Publish
//     failures are message-fatal only; the cycle carries on.
//   - Ops surface: internal/api serves health probes, Prometheus metrics, and
//     read-only JSON views of the last cycle and tracked incidents. Viper
//     populates config from file/env; zap provides structured logging.
//
// Operational notes:
//   - The process reacts to SIGINT/SIGTERM for graceful drain: in-flight
//     publishes finish, state is saved, and the HTTP server shuts down.
//   - Run locally: go run . run --config config.yaml (or rely solely on
//     CADWATCH_* env overrides). Add --once for a single poll cycle, or
//     --dry-run to parse and log without touching the broker or saved state.
package main
