// Package events carries view updates from the background controllers to
// whatever renders them.
//
// Controllers emit an Event each time a poll produces a new snapshot. The
// CLI registers handlers that redraw or print; tests register handlers that
// record. Emitters never block on slow consumers beyond the handler call.
package events
