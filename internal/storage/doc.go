// Package storage is the durable event store for reminders.
//
// Two backends share one set of queries:
//   - sqlite (modernc.org/sqlite, default)
//   - postgres (lib/pq)
//
// Schemas are versioned with golang-migrate and embedded in the binary.
// `when` is persisted as Unix seconds and returned in the configured zone.
package storage
