// Package store defines interfaces for data persistence operations,
// providing abstraction between domain logic and storage implementations.
package store
