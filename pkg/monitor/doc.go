// Package monitor is a read-only operational HTTP server for a hub
// session. It exposes the session's device tree and counters to humans
// and scrapers without touching the TCP protocol path:
//
//	GET /healthz      liveness plus the session's connection state
//	GET /devices      the current device tree as JSON
//	GET /devices/{id} one device record
//	GET /metrics      Prometheus metrics fed from the session counters
//	GET /feed         WebSocket stream of live channel updates
//
// The server observes the session through the Source interface and the
// HandleDelta callback; it never mutates session state. Wire it up by
// registering HandleDelta as (part of) the session's delta handler:
//
//	mon := monitor.NewServer(session, monitor.Config{Addr: ":8480"})
//	sess, _ := hub.NewSession(cfg, func(d hub.Delta) {
//	    mon.HandleDelta(d)
//	})
//	go mon.Run(ctx)
package monitor
