package cmd

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/sessiongate/internal/alerts"
	"github.com/xiaot623/gogo/sessiongate/internal/auth"
	"github.com/xiaot623/gogo/sessiongate/internal/domain"
)

func newWatchServer(t *testing.T) (*alerts.Hub, string) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := alerts.NewHub()
	go hub.Run(ctx)

	srv := alerts.NewServer(alerts.Config{
		PingInterval:   time.Second,
		WriteTimeout:   time.Second,
		ReadTimeout:    5 * time.Second,
		MaxMessageSize: 4096,
	}, hub, func(context.Context, string, domain.Identity) error { return nil })

	e := echo.New()
	e.GET("/v1/sessions/:id/watch", srv.HandleWatch, auth.Middleware(auth.NewVerifier(auth.Config{Audience: DefaultAudience})))
	ts := httptest.NewServer(e)
	t.Cleanup(ts.Close)
	return hub, ts.URL
}

func TestWatchStreamsEvents(t *testing.T) {
	hub, base := newWatchServer(t)
	p, _ := newKeyProfile(t, base)
	client, err := NewClient(p)
	require.NoError(t, err)

	target, err := client.WatchURL("s1")
	require.NoError(t, err)
	token, err := client.bearer()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := DialWatch(ctx, target, token)
	require.NoError(t, err)
	defer w.Close()

	received := make(chan alerts.Message, 4)
	done := make(chan error, 1)
	go func() {
		done <- w.Stream(ctx, func(msg alerts.Message, _ []byte) error {
			received <- msg
			return nil
		})
	}()

	next := func() alerts.Message {
		select {
		case msg := <-received:
			return msg
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for message")
			return alerts.Message{}
		}
	}

	assert.Equal(t, alerts.TypeWatching, next().Type)

	hub.Publish(domain.Event{EventID: "e1", SessionID: "s1", Type: domain.EventTypePositionOutOfRange})
	msg := next()
	assert.Equal(t, alerts.TypeEvent, msg.Type)
	assert.True(t, msg.Alert)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestDialWatchUnauthenticated(t *testing.T) {
	_, base := newWatchServer(t)
	client, err := NewClient(Profile{URL: base, Token: "bogus"})
	require.NoError(t, err)
	target, err := client.WatchURL("s1")
	require.NoError(t, err)

	_, err = DialWatch(context.Background(), target, "bogus")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)
	assert.Equal(t, "Unauthenticated", apiErr.Code)
}

func TestPrintMessage(t *testing.T) {
	var buf bytes.Buffer
	msg := alerts.Message{
		Type:  alerts.TypeEvent,
		Ts:    0,
		Alert: true,
		Event: &domain.Event{Type: domain.EventTypePositionOutOfRange},
	}
	require.NoError(t, printMessage(&buf, msg, []byte(`{"type":"event"}`)))
	assert.Contains(t, buf.String(), "[1970-01-01T00:00:00Z] ALERT position_out_of_range")
}
