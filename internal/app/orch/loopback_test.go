package orch

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/bounce/internal/adapters/rtc"
	signaling "github.com/dkeye/bounce/internal/adapters/signal"
	"github.com/dkeye/bounce/internal/app"
	"github.com/dkeye/bounce/internal/app/accuracy"
	"github.com/dkeye/bounce/internal/config"
	"github.com/dkeye/bounce/internal/core"
	"github.com/dkeye/bounce/internal/logging"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func waitRun(t *testing.T, name string, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		assert.NoError(t, err, name)
	case <-time.After(10 * time.Second):
		t.Fatalf("%s did not return", name)
	}
}

func onlySession(all map[core.SessionID]accuracy.Summary) (accuracy.Summary, bool) {
	if len(all) != 1 {
		return accuracy.Summary{}, false
	}
	var sum accuracy.Summary
	for _, s := range all {
		sum = s
	}
	return sum, true
}

func TestOfferAnswerOverTCPSignaling(t *testing.T) {
	if testing.Short() {
		t.Skip("starts two peer connections")
	}

	api, err := rtc.NewAPI(logging.PionFactory{})
	require.NoError(t, err)
	rtcCfg := rtc.Configuration(nil)
	media := func(sid core.SessionID) (*rtc.Connection, error) {
		return rtc.NewConnection(api, rtcCfg, sid)
	}

	video := config.VideoConfig{Width: 960, Height: 480, Radius: 20, FPS: 30, ClockRate: 90000}
	oreg, areg := app.NewRegistry(), app.NewRegistry()
	off := &Offerer{
		Negotiator: app.NewNegotiator(oreg),
		Registry:   oreg,
		Media:      media,
		Video:      video,
	}
	ans := &Answerer{
		Negotiator: app.NewNegotiator(areg),
		Registry:   areg,
		Media:      media,
		Video:      video,
		Tracking: config.TrackingConfig{
			QueueSize:                  8,
			DropPolicy:                 "drop_oldest",
			Detector:                   "hough",
			AccumulatorResolutionRatio: 5,
			MinCenterDistance:          10,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	addr := freeAddr(t)
	offDone := make(chan error, 1)
	ansDone := make(chan error, 1)
	go func() { offDone <- off.Run(ctx, signaling.NewTCPChannel(addr)) }()
	go func() { ansDone <- ans.Run(ctx, signaling.NewTCPChannel(addr)) }()

	require.Eventually(t, func() bool {
		sum, ok := onlySession(off.Accuracy())
		return ok && sum.Matched >= 30
	}, 30*time.Second, 50*time.Millisecond)

	sum, ok := onlySession(off.Accuracy())
	require.True(t, ok)
	assert.Zero(t, sum.Unmatched)
	assert.LessOrEqual(t, sum.Max, 8.0)
	assert.Equal(t, 1, areg.Len())

	require.NoError(t, oreg.CloseAll(ctx))
	waitRun(t, "offerer", offDone)
	waitRun(t, "answerer", ansDone)

	assert.Zero(t, oreg.Len())
	assert.Zero(t, areg.Len())
	assert.Empty(t, off.Accuracy())
}
