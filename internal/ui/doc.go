// Package ui renders the CLI's styled output: the update progress screen,
// result boxes, and the saved-device views.
//
// The update screen is a Bubble Tea model fed by monitor snapshots; the
// rest is plain lipgloss rendering through a Printer so command output can
// be captured in tests.
package ui
