// Package store defines the progress record model and the repository
// interfaces used to persist it. Implementations live in internal/storage;
// this package must not import database drivers or concrete clients.
package store
