// Package event defines the behavioral event model shared by the ingestion
// pipeline: searches, filter applications, listing views and clicks, session
// lifecycle markers, and system errors.
//
// Events are value objects. Producers build them, the queue buffers them, the
// rule engine reads them; nothing mutates an event after creation.
package event
