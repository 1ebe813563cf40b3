// Package ui is the Bubble Tea terminal front end.
//
// The root Model cycles four views: Folders, Devices, Pending (unaccepted
// device introductions and folder offers) and Device ID (the local ID as a
// scannable code). Every frame renders from the engine's immutable
// Projection, fetched on a short tick and right after each submit; the UI
// holds no state of its own beyond cursors, the active popup and the theme.
//
// Mutations go through popups (new folder, accept device/folder, share,
// delete confirmation) that build an engine Intent and submit it off the
// Bubble Tea loop. Rows with an unconfirmed mutation carry a badge; rows
// whose mutation has waited past the stall window additionally say so. A
// failed submit surfaces in the header until the next one.
package ui
