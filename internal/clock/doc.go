// Package clock provides a session-scoped owner for timers and intervals.
//
// Deadlines, poll intervals, and deferred refreshes all belong to some
// session or monitor with a definite end of life. A SessionClock keeps
// every timer it creates, so teardown is one CancelAll call and a callback
// that was already in flight when the session died becomes a no-op instead
// of firing into freed state.
package clock
