// Package idgen provides short, URL-safe unique ID generation backed by nanoid.
// Session and connection identifiers come from here; entity ids are UUIDs
// assigned by the authoring client.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet defines the character set used for the random portion of an ID.
var Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// SessionLength is the number of random characters in a session ID. Session
// ids are bearer credentials, so they are longer than connection ids.
var SessionLength = 32

// ConnLength is the number of random characters in a connection ID.
var ConnLength = 10

// NewSessionID returns a new session identifier with the "ss-" prefix.
func NewSessionID() (string, error) {
	id, err := nanoid.Generate(Alphabet, SessionLength)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return "ss-" + id, nil
}

// NewConnID returns a new live-connection identifier with the "cn-" prefix.
func NewConnID() (string, error) {
	id, err := nanoid.Generate(Alphabet, ConnLength)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return "cn-" + id, nil
}
