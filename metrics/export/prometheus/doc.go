// Package prometheus renders session metrics in Prometheus text exposition
// format.
//
// [NewExporter] reads any [Source], typically a *peerbonus.Manager, and
// exposes an [http.Handler]. Counter names are peerbonus_*_total; the single
// histogram is peerbonus_auth_latency_seconds.
//
// Nothing is registered in a global registry; callers mount the Handler.
package prometheus
