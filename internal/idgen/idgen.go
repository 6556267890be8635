// Package idgen issues short, URL-safe correlation IDs backed by nanoid.
//
// Event IDs are UUIDs and come from the events package; these IDs only
// label requests that arrived without an upstream correlation header.
package idgen

import (
	nanoid "github.com/matoous/go-nanoid/v2"
)

// CorrelationPrefix is prepended to every generated correlation ID.
const CorrelationPrefix = "req-"

const (
	alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	length   = 16
)

// CorrelationID returns a fresh correlation ID such as "req-3fZk0Qp1LmA9xYtB".
// If the random source fails it returns "req-unknown".
func CorrelationID() string {
	id, err := nanoid.Generate(alphabet, length)
	if err != nil {
		return CorrelationPrefix + "unknown"
	}
	return CorrelationPrefix + id
}
