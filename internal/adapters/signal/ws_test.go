package signal

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/bounce/internal/core"
)

func TestWSChannelExchange(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	l := NewWSListener(WSOptions{ReadLimit: 1 << 16, PingPeriod: time.Second})
	r := gin.New()
	r.GET("/api/ws/signal", l.HandleSignal)
	srv := httptest.NewServer(r)
	defer srv.Close()

	accepted := make(chan *WSChannel, 1)
	go func() {
		ch, err := l.Accept(ctx)
		if err == nil {
			accepted <- ch
		}
	}()

	client, err := DialWS(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws/signal", WSOptions{})
	require.NoError(t, err)

	var server *WSChannel
	select {
	case server = <-accepted:
	case <-ctx.Done():
		t.Fatal("no peer accepted")
	}

	offer := core.Description{SessionDescription: webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0\r\n"}}
	require.NoError(t, server.Send(ctx, offer))
	got, err := client.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, offer, got)

	require.NoError(t, client.Close())
	got, err = server.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Bye{}, got)

	assert.ErrorIs(t, client.Send(ctx, core.Bye{}), ErrChannelClosed)
	require.NoError(t, server.Close())
}
