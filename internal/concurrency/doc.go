// File: internal/concurrency/doc.go
// License: Apache-2.0
//
// Timer scheduling and backoff primitives used by the supervisor and the
// connector. Every timer is owned through an api.Cancelable handle.
package concurrency
