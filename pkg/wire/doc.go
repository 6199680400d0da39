// Package wire defines the JSON-RPC envelope format spoken by Kolibri
// brokers and consumers.
//
// Every WebSocket text frame carries exactly one envelope:
//
//	{"jsonrpc":"2.0", "method":..., "id":..., "params":..., "result":..., "error":..., "_server":...}
//
// # Envelope Kinds
//
// Decode classifies an inbound frame by which members are present:
//   - Request: method and id
//   - Notification: method without id
//   - Result: result (null is a valid result)
//   - Error: error object with code and message
//
// Each kind has a routed variant, selected by the presence of the opaque
// "_server" routing tag. Anything else is Invalid. Frames that are not
// valid JSON fail with ErrMalformed.
//
// # Error Codes
//
// Kolibri error codes 1..99 travel as reserved JSON-RPC codes
// -(31900+code). Error.Outbound and Error.Kolibri convert between the two.
package wire
