// Package mpris publishes the playback service on the session bus so that
// desktop media keys and applets can control it.
package mpris
