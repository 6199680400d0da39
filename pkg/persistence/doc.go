// Package persistence stores the client identity a Kolibri broker assigns
// at login so that reconnects and restarts present the same client id.
//
// Two stores are provided: FileStore keeps all identities in one JSON file,
// BoltStore keeps them in a bbolt database bucket. Open picks one by file
// extension.
package persistence
