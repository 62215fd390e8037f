// Package control provides the HTTP client for a light's IP control API.
//
// Once a light has been provisioned onto WiFi, everything happens over this
// channel: reachability checks, light status and toggling, firmware
// metadata, and the firmware-update endpoints. All requests are scoped to
// one device IP and bounded by a 10 second timeout; a timeout or a non-2xx
// status means the device is treated as offline.
//
// # Endpoints
//
//	GET  /online             -> {"device":1,"state":"on"}
//	GET  /light              -> {"state":"on"}
//	PUT  /toggle             -> plain text new state
//	GET  /ota/firmware-info  -> {"version":...,"project_name":...,"ota_in_progress":...}
//	POST /ota/update         -> body {"url":...}, response {"status":...}
//	GET  /ota/progress       -> {"in_progress":true,"progress":40,"status":"Downloading"}
//
// # Error Handling
//
// Failures come back as *DeviceError values classified by cause (transport,
// timeout, HTTP status, parse). Use IsOffline to collapse the offline
// classes, and IsRetryable to decide whether a polling loop should simply
// try again next tick.
package control
