package mux

import "github.com/pion/stun/v3"

// MatchSTUN classifies a datagram as a STUN message by its magic cookie,
// the first half of the agent's recv-phase packet classification
// ("parsing as STUN first... else delivering as application data").
func MatchSTUN(buf []byte) bool {
	return stun.IsMessage(buf)
}
