// Package provision implements the credential-handoff handshake that puts
// a factory-fresh light onto the user's WiFi network.
//
// # Handshake
//
// A Session runs over an already-connected radio link:
//
//  1. Write the WiFi credentials to the provisioning characteristic.
//  2. Wait for the light to join the network. Two detection channels run
//     concurrently: a notification subscription on the device-info
//     characteristic, and an explicit read every three seconds (up to ten
//     attempts). The device-side stack does not reliably deliver
//     notifications, so polling is a mandatory fallback.
//  3. On the first usable device-info payload, write a {"success":1}
//     confirmation, persist the device record, and disconnect the radio
//     link. IP-based control takes over.
//
// Both channels race into a single-resolution gate: whichever observes the
// join first carries the handshake forward, and the other becomes a no-op.
// A session therefore performs at most one confirmation write and at most
// one registry write, no matter how the race lands.
//
// # Failure modes
//
// A 30 second deadline covers the whole handshake. Its expiry yields
// StateTimedOut ("the light never answered"), which is reported separately
// from StateFailed ("the light answered but the handshake broke off"), so
// callers can give different guidance for each. A failed confirmation is
// not retried automatically: the light is left joined but unconfirmed, and
// re-running provisioning is the recovery path.
//
// Every timer lives on one session clock that is cancelled on all terminal
// transitions and on Close, so no callback can fire into a torn-down
// session.
package provision
