package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"enchant-server/shared/models"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers enforce same-origin on the page serving the reader; the API
	// is token-authenticated, so cross-origin upgrades are acceptable.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// watchRun streams run snapshots over a websocket until the run reaches a
// terminal state or the client goes away. Closing the socket is advisory
// only: the run keeps executing server-side.
func (h *Handler) watchRun(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, APIError{Message: "token query parameter is required"})
		return
	}
	if _, err := h.verifier.VerifyToken(c.Request.Context(), token); err != nil {
		c.JSON(http.StatusUnauthorized, APIError{Message: "invalid or expired token"})
		return
	}
	runID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	// Snapshot first so a client connecting to a finished run still gets
	// the final state before the subscription yields nothing.
	current, err := h.runs.Get(c.Request.Context(), runID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	updates, err := h.runs.Subscribe(ctx, runID)
	if err != nil {
		h.logger.Error("Run subscription failed", zap.String("runID", runID.String()), zap.Error(err))
		return
	}

	// Reader goroutine only to notice client disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if !h.writeRun(conn, current) {
		return
	}
	if isTerminalRun(current.Status) {
		return
	}

	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case run, open := <-updates:
			if !open {
				return
			}
			if !h.writeRun(conn, run) {
				return
			}
			if isTerminalRun(run.Status) {
				return
			}
		case <-pingTicker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) writeRun(conn *websocket.Conn, run *models.EnhancementRun) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(run); err != nil {
		h.logger.Debug("Websocket write failed", zap.Error(err))
		return false
	}
	return true
}

func isTerminalRun(status models.RunStatus) bool {
	return status == models.RunStatusCompleted || status == models.RunStatusFailed
}
