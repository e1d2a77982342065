package echoapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/appgen/core"
	"github.com/trezcool/appgen/core/build"
	"github.com/trezcool/appgen/core/events"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

const failedPrefix = "build failed: "

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the dashboard is served from another origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

// stream sends build events as JSON frames over a websocket.
// With `?jobId=` only that job's events are sent, and the socket is closed after its terminal event.
func (api *buildApi) stream(ctx echo.Context) error {
	jobID := core.CleanString(ctx.QueryParam("jobId"))

	// subscribe before reading the job so a transition in between is never missed
	sub := api.hub.Subscribe(events.Filter{JobID: jobID})
	defer sub.Close()

	var job build.Job
	if jobID != "" {
		var err error
		if job, err = api.svc.Get(ctx.Request().Context(), jobID); err != nil {
			return errors.Wrap(err, "getting build")
		}
	}

	conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return nil // the upgrader already replied
	}
	defer conn.Close()

	// late observers of a finished job get its outcome from the store
	if jobID != "" && job.Status.IsTerminal() {
		e := terminalEvent(job)
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(e); err != nil {
			api.log.Debug(fmt.Sprintf("build stream: writing event: %v", err), err)
			return nil
		}
		api.close(conn, websocket.CloseNormalClosure, string(e.Type))
		return nil
	}

	// read side: handle pongs and detect the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			return nil
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case e, ok := <-sub.C():
			if !ok {
				api.close(conn, websocket.CloseGoingAway, "server shutting down")
				return nil
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				api.log.Debug(fmt.Sprintf("build stream: writing event: %v", err), err)
				return nil
			}
			if jobID != "" && e.IsTerminal() {
				api.close(conn, websocket.CloseNormalClosure, string(e.Type))
				return nil
			}
		}
	}
}

// terminalEvent rebuilds the last event of a finished job from its stored record.
func terminalEvent(job build.Job) events.Event {
	at := job.CreatedAt
	if job.CompletedAt != nil {
		at = *job.CompletedAt
	}
	if job.Status == build.StatusCompleted && job.DownloadURL != nil {
		return events.Completed(job.ID, *job.DownloadURL, at)
	}
	reason := strings.TrimPrefix(job.LastMessage(), failedPrefix)
	return events.Failed(job.ID, job.Progress, reason, at)
}

func (api *buildApi) close(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
