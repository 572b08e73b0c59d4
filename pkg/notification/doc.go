// Package notification defines the notification domain model produced by the
// rule engine and the Store interface the pipeline persists through.
//
// A notification is owned by its store once created; the pipeline only ever
// creates and broadcasts them. Read-model operations (list, mark read, delete,
// per-type preferences) are exposed for the API surface that serves clients.
package notification
