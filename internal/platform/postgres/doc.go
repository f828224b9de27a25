// Package postgres provides PostgreSQL implementations of the store
// interfaces. Every cross-component state transition is expressed as a
// conditional UPDATE whose rows-affected count decides whether the caller
// won the claim.
package postgres
