package wire

import "time"

// ProtocolVersion is the Kolibri RPC protocol version sent at login.
const ProtocolVersion = 0

// Kolibri RPC method names.
const (
	MethodGetChallenge = "kolibri.getChallenge"
	MethodLogin        = "kolibri.login"
	MethodSubscribe    = "kolibri.subscribe"
	MethodUnsubscribe  = "kolibri.unsubscribe"
	MethodWrite        = "kolibri.write"
	MethodGetRPCInfo   = "kolibri.getRpcInfo"
	MethodUnsubscribed = "kolibri.unsubscribed"
)

// ConsumerMethods lists the methods a consumer answers, as reported by
// kolibri.getRpcInfo.
var ConsumerMethods = []string{MethodGetRPCInfo, MethodWrite, MethodUnsubscribed}

// Empty is the params value of parameterless requests ({}).
type Empty struct{}

// LoginParams are the params of kolibri.login.
type LoginParams struct {
	Version             int    `json:"version"`
	User                string `json:"user"`
	Password            string `json:"password"`
	Interval            int    `json:"interval"`
	Timeout             int    `json:"timeout"`
	PendingTransactions bool   `json:"pendingTransactions"`
	Client              string `json:"client,omitempty"`
}

// LoginResult is the result of kolibri.login. Brokers may assign a
// client id that should be presented on the next login.
type LoginResult struct {
	Client string `json:"client,omitempty"`
}

// PathParam is one element of kolibri.subscribe and kolibri.unsubscribe
// params.
type PathParam struct {
	Path string `json:"path"`
}

// PathParams builds subscribe/unsubscribe params for paths.
func PathParams(paths ...string) []PathParam {
	out := make([]PathParam, len(paths))
	for i, p := range paths {
		out[i] = PathParam{Path: p}
	}
	return out
}

// PointState is the value of a data point at a given time.
type PointState struct {
	Path            string `json:"path"`
	Timestamp       int64  `json:"timestamp"`
	Quality         int    `json:"quality"`
	Value           any    `json:"value"`
	TimestampBroker *int64 `json:"timestamp_broker,omitempty"`
}

// QualityGood is the quality of a valid value.
const QualityGood = 1

// NewPointState returns a good-quality point stamped with t in
// milliseconds since the Unix epoch.
func NewPointState(path string, value any, t time.Time) PointState {
	return PointState{Path: path, Timestamp: t.UnixMilli(), Quality: QualityGood, Value: value}
}

// WriteParams are the params of kolibri.write in both directions.
type WriteParams struct {
	Nodes []PointState `json:"nodes"`
}

// UnsubscribedEntry is one element of kolibri.unsubscribed params.
// Subscribe reports whether the consumer may subscribe again.
type UnsubscribedEntry struct {
	Path      string `json:"path"`
	Subscribe bool   `json:"subscribe"`
}

// RPCInfo is the result of kolibri.getRpcInfo.
type RPCInfo struct {
	Version int      `json:"version"`
	Methods []string `json:"methods"`
}
