// Package timeouts defines the timeout constants shared by the authority and
// its peers, so both sides of a connection agree on them.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing the authority health endpoint.
const GRPCDial = 2 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight work during graceful
// shutdown.
const Shutdown = 5 * time.Second

// AuthorityRequest caps a single execute-as-authority round trip.
const AuthorityRequest = 5 * time.Second

// PeerWrite bounds a single frame write to a peer connection.
const PeerWrite = 2 * time.Second

// StorageOpen bounds opening and pinging a storage backend at startup.
const StorageOpen = 5 * time.Second
