// Package probe keeps a paired light's record fresh while someone is
// looking at it.
//
// A Probe ticks on a fixed interval: one reachability check, then, only
// when the device answers, cheap light-state and firmware-info reads. The
// observation is pushed to the caller and folded into the device record
// with a merge-write that leaves fields owned by other components (the
// update monitor's ota_in_progress flag in particular) untouched. An
// offline tick writes nothing.
//
// Probes run only between Start and Stop, so nothing polls the device when
// no screen cares. Tick failures are logged and swallowed; the stored
// record is eventually consistent with the device, never authoritative.
package probe
