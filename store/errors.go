package store

import "errors"

var (
	// ErrDestroyed is returned by operations on a destroyed store.
	ErrDestroyed = errors.New("store destroyed")

	// ErrUnknownKey is returned when a key is not present in the schema.
	ErrUnknownKey = errors.New("unknown setting key")

	// ErrActionKey is returned when Set is called on an action key.
	ErrActionKey = errors.New("key is an action, use Invoke")

	// ErrNotAction is returned when Invoke is called on a value key.
	ErrNotAction = errors.New("key is not an action")
)
