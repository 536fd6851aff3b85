package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"
)

// defaultStreamChunkWriteTimeout is the per-chunk write deadline for streaming
// responses. If the client stops reading for this long the connection is
// terminated.
const defaultStreamChunkWriteTimeout = 30 * time.Second

var streamBufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 8192)
		return &buf
	},
}

// streamToClient copies reader to w, flushing after every chunk. It returns
// the first write error; read errors end the stream and are only logged,
// because the status line has already been sent.
func streamToClient(w http.ResponseWriter, reader io.Reader, chunkTimeout time.Duration, logger *slog.Logger) error {
	controller := http.NewResponseController(w)

	buf := streamBufPool.Get().(*[]byte)
	defer streamBufPool.Put(buf)
	for {
		n, err := reader.Read(*buf)
		if n > 0 {
			// Set write deadline before each write: active streams stay alive,
			// a client that stops reading is cut off after chunkTimeout.
			_ = controller.SetWriteDeadline(time.Now().Add(chunkTimeout))
			if _, writeErr := w.Write((*buf)[:n]); writeErr != nil {
				if isClientDisconnectError(writeErr) {
					logger.Debug("Client disconnected during streaming", "error", writeErr)
				} else {
					logger.Error("Failed to write streaming chunk", "error", writeErr)
				}
				return writeErr
			}
			flushStreaming(controller, logger)
		}
		if err != nil {
			if err != io.EOF && !isClientDisconnectError(err) {
				logger.Error("Streaming read error", "error", err)
			}
			return nil
		}
	}
}

func flushStreaming(controller *http.ResponseController, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Flusher panic", "panic", r)
		}
	}()
	if err := controller.Flush(); err != nil {
		if errors.Is(err, http.ErrNotSupported) {
			logger.Debug("Streaming flush not supported by response writer")
		} else {
			logger.Debug("Flusher error", "error", err)
		}
	}
}

// writeBuffered copies a complete (non-streaming) body to the client.
func writeBuffered(w http.ResponseWriter, body io.Reader, logger *slog.Logger) error {
	if _, err := io.Copy(w, body); err != nil {
		if isClientDisconnectError(err) {
			logger.Debug("Client disconnected during response write", "error", err)
		} else {
			logger.Error("Failed to write response body", "error", err)
		}
		return err
	}
	return nil
}

// isClientDisconnectError checks if an error indicates the client disconnected
// (broken pipe, connection reset, cancelled context).
func isClientDisconnectError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "write: broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}
