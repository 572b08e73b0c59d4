// Package pipeline wires the trend detection components into one running
// unit: the ingestion queue, the rule engine, the channel manager, and the
// connection gate.
//
// A Pipeline owns the full event path. Producers call Ingest, the queue
// batches and persists events, the rule engine evaluates each persisted
// event against the enabled rules, and resulting notifications fan out to
// the matching user channel and the admin channel. Ingested events are also
// rebroadcast on the analytics channels for live dashboards.
//
// The control plane is exposed through Connect, Disconnect, and
// HandleMessage. Transports (see pkg/transport/sse) translate their wire
// format into these calls; the pipeline enforces quotas and the message
// protocol, returning an error frame when a client violates either.
//
// # Usage
//
//	p, err := pipeline.New(pipeline.Config{}, pipeline.Deps{
//	    Events:        eventStore,
//	    Notifications: notifStore,
//	    Counters:      window.NewMemoryCounter(),
//	    Transport:     transport,
//	})
//	if err != nil {
//	    // handle error
//	}
//	defer p.Shutdown(context.Background())
//
//	id, err := p.Connect(ctx, token)
//	frame := p.HandleMessage(ctx, id, raw)
//	err = p.Ingest(ctx, ev)
package pipeline
