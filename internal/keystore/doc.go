// Package keystore persists channel keys obtained through keygen, so that
// later commands can publish or subscribe without a master key.
//
// Keys are stored per normalised channel ("chat/room/"). A key created with
// a TTL is reported as expired once that many seconds have passed since it
// was saved.
package keystore
