// Package session issues opaque session tokens for customer IDs and resolves
// them back. A customer holds at most one live token; asking again returns the
// same one.
//
// Sessions never expire unless the registry is built with a positive idle TTL,
// in which case a session unused for longer than the TTL is treated as absent
// and removed by the background Run loop.
package session
