// Command wsclient follows the events of one planning over the WebSocket
// endpoint and prints each one as a JSON line.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fleetroute/internal/events"
	"fleetroute/internal/logger"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "API host:port")
	planningID := flag.String("planning", "", "planning id to follow")
	token := flag.String("token", os.Getenv("FLEETROUTE_TOKEN"), "bearer token")
	until := flag.String("until", events.TypeReady, "exit after this event type; empty follows forever")
	flag.Parse()
	if *planningID == "" {
		fmt.Fprintln(os.Stderr, "usage: wsclient -planning <id> [-addr host:port] [-token t]")
		os.Exit(2)
	}

	lg, err := logger.New("info", "console")
	if err != nil {
		log.Fatal(err)
	}
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/v1/plannings/" + *planningID + "/events/ws"}
	hdr := http.Header{}
	if *token != "" {
		hdr.Set("Authorization", "Bearer "+*token)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		lg.Fatal("dial failed", zap.String("url", u.String()), zap.Int("status", status), zap.Error(err))
	}
	defer func() { _ = conn.Close() }()
	lg.Info("connected", zap.String("url", u.String()))

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	go func() {
		<-interrupt
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	enc := json.NewEncoder(os.Stdout)
	for {
		var evt events.Event
		if err := conn.ReadJSON(&evt); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			lg.Fatal("read failed", zap.Error(err))
		}
		_ = enc.Encode(evt)
		if *until != "" && (evt.Type == *until || evt.Type == events.TypeFailed) {
			return
		}
	}
}
