// Package orch wires a negotiated session to the work each role does on
// it: the offering peer streams and scores, the answering peer tracks and
// reports.
package orch

import (
	"github.com/dkeye/bounce/internal/adapters/rtc"
	"github.com/dkeye/bounce/internal/core"
)

// DataChannelLabel names the side-channel carrying position reports.
const DataChannelLabel = "dev-demo"

// MediaFactory opens the transport for a new session.
type MediaFactory func(sid core.SessionID) (*rtc.Connection, error)
