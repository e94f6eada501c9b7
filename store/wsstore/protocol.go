// Package wsstore relays a store over websockets: Server exposes a backing store
// to many clients and Client implements store.Store against a Server.
package wsstore

import (
	"encoding/json"
	"time"

	"github.com/gekko3d/pixelplace/store"
)

const (
	msgSubscribe   = "subscribe"
	msgUnsubscribe = "unsubscribe"
	msgWrite       = "write"
	msgSnapshot    = "snapshot"
	msgAck         = "ack"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// DefaultMaxMessageSize bounds one incoming message. A snapshot carries the whole
// path, so the limit has to fit the largest canvas served.
const DefaultMaxMessageSize = 256 << 20

// message is the single JSON envelope used in both directions. ID is the
// subscription id for subscribe/unsubscribe/snapshot and the request id for
// write/ack.
type message struct {
	Type    string                     `json:"type"`
	ID      string                     `json:"id,omitempty"`
	Path    string                     `json:"path,omitempty"`
	Updates map[string]json.RawMessage `json:"updates,omitempty"`
	Data    store.Snapshot             `json:"data,omitempty"`
	Error   string                     `json:"error,omitempty"`
}
