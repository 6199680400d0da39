// Package httpapi exposes a broker session over a small JSON HTTP API.
//
// The API reports the session state, lists subscriptions with their last
// received value, adds and removes subscriptions and writes point values
// to the broker:
//
//	GET    /health
//	GET    /api/status
//	GET    /api/subscriptions
//	POST   /api/subscriptions        {"path": "/plant/temp"}
//	DELETE /api/subscriptions/*path
//	GET    /api/points/*path
//	POST   /api/write                {"path": "/plant/setpoint", "value": 21.5}
package httpapi
