// Package simulator is an in-process stand-in for a light's firmware.
//
// It serves the same HTTP control API as a real unit (online, light,
// toggle, firmware info, update, progress) and the setup-mode
// characteristic bridge at /bridge, all backed by one shared device
// state: credentials written over the bridge make the simulated device
// "join" after a configurable delay, after which the device-info
// characteristic carries its network identity and an update cycle can be
// driven end to end.
//
// lumen-simd wraps this package in a binary for development against no
// hardware; the tests here use it for full-stack provisioning and update
// runs.
package simulator
