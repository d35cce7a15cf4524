// Package notifier delivers fired reminders to their owners.
//
// Delivery is a direct message through a transport.Adapter. Every attempt
// waits on a token bucket, is bounded by a per-send timeout, and failed
// attempts are retried with jittered exponential backoff. The final error
// wraps ErrDelivery; the caller logs it and moves on.
//
// # History
//
// The service keeps a small in-memory history of recent deliveries for the
// status command.
package notifier
