// Package persistence saves device snapshots as JSON.
//
// A snapshot holds the property dumps of every device context in a
// process. It is written on shutdown and on demand so that the signal
// layout of a session can be inspected or compared after the fact.
package persistence
