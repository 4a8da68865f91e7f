// Package layout maps the visible users onto regions of the main window.
//
// The window shows a fixed-width sidebar on the left and at most two
// content regions. Geometry is a pure function of the window bounds, the
// sidebar width and the (primary, secondary) pair; Manager keeps the pair,
// resolves contexts through the session registry before showing them, and
// reconciles the attached views against the desired set after every change.
package layout
