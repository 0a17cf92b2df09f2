package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/xiaot623/gogo/sessiongate/internal/alerts"
)

var flagAlertsOnly bool

var watchCmd = &cobra.Command{
	Use:   "watch <session-id>",
	Short: "Stream a session's events and range alerts",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&flagAlertsOnly, "alerts-only", false, "Print only out-of-range alerts")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	client, err := newClientFromFlags()
	if err != nil {
		return err
	}
	target, err := client.WatchURL(args[0])
	if err != nil {
		return err
	}
	token, err := client.bearer()
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	w, err := DialWatch(ctx, target, token)
	if err != nil {
		return err
	}
	defer w.Close()

	out := cmd.OutOrStdout()
	return w.Stream(ctx, func(msg alerts.Message, raw []byte) error {
		if flagAlertsOnly && !msg.Alert {
			return nil
		}
		return printMessage(out, msg, raw)
	})
}

// Watcher is a websocket subscription to one session.
type Watcher struct {
	conn *websocket.Conn
}

// DialWatch opens the alert stream at target.
func DialWatch(ctx context.Context, target, token string) (*Watcher, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, target, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			return nil, decodeAPIError(resp)
		}
		return nil, fmt.Errorf("dial: %w", err)
	}
	return &Watcher{conn: conn}, nil
}

// Stream calls handle for every message until ctx ends or the server
// closes the stream.
func (w *Watcher) Stream(ctx context.Context, handle func(alerts.Message, []byte) error) error {
	go func() {
		<-ctx.Done()
		w.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		w.conn.Close()
	}()

	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		var msg alerts.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if err := handle(msg, data); err != nil {
			return err
		}
	}
}

// Close closes the underlying connection.
func (w *Watcher) Close() error {
	return w.conn.Close()
}

func printMessage(w io.Writer, msg alerts.Message, raw []byte) error {
	label := msg.Type
	if msg.Event != nil {
		label = string(msg.Event.Type)
	}
	if msg.Alert {
		label = "ALERT " + label
	}
	ts := time.UnixMilli(msg.Ts).UTC().Format(time.RFC3339)
	if _, err := fmt.Fprintf(w, "[%s] %s\n", ts, label); err != nil {
		return err
	}
	return printJSON(w, raw)
}
