// Package storage holds what the event log backends share: paged replay
// with sequence gap detection, sealing of appended events into the hash
// chain, and offline verification of that chain.
//
// Backends live in subpackages (memory, sqlite, bbolt, pebble). Each one
// implements Log.
package storage
