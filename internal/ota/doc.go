// Package ota tracks firmware rollouts on lights over their HTTP control
// API.
//
// A Supervisor creates Monitors and enforces the single-flight rule: at
// most one active monitor per device per process. Start triggers the
// rollout on the device and records a durable ota_in_progress flag in the
// registry before polling begins; Resume picks a rollout back up after a
// process restart using that flag, without re-triggering the update.
//
// A Monitor polls the progress endpoint until the device reports
// completion. Reported percentages pass through a session-scoped monotonic
// guard, so a stale or reordered response can never walk a progress bar
// backwards. Completion clears the durable flag and, after a short reboot
// grace period, refreshes the stored firmware metadata from the device. A
// hard ceiling bounds how long a rollout that never completes is polled.
//
// Stopping a monitor is teardown, not completion: the durable flag stays
// set so a later Resume can continue watching the same rollout.
package ota
