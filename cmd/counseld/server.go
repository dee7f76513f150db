package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nevindra/counsel"
)

// chatEngine is the engine surface the HTTP layer needs.
type chatEngine interface {
	Process(ctx context.Context, req counsel.Request, ch chan<- counsel.Event) error
	ClearContext(ctx context.Context, sessionID string) bool
}

// Server exposes the advisory engine over HTTP.
type Server struct {
	engine chatEngine
	logger *slog.Logger
}

func NewServer(engine chatEngine, logger *slog.Logger) *Server {
	return &Server{engine: engine, logger: logger}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("DELETE /chat/{session}", s.handleClear)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Mode      string `json:"mode"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handleChat relays the turn's event stream as Server-Sent Events, one
// `data:` frame per engine event.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Code: 3001, Message: "请求格式错误"})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Code: 3001, Message: "message 不能为空"})
		return
	}
	if req.Mode == "" {
		req.Mode = string(counsel.ModeStandard)
	}
	if req.Mode != string(counsel.ModeStandard) && req.Mode != string(counsel.ModeDiscussion) {
		writeJSON(w, http.StatusBadRequest, apiError{Code: 3002, Message: "参数类型错误：mode 必须是 standard 或 discussion"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = counsel.NewID()
	}

	s.logger.Info("收到对话请求", "session", req.SessionID, "mode", req.Mode)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, apiError{Code: 1099, Message: "服务暂时不可用，请稍后重试"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Disable nginx buffering.
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	ch := make(chan counsel.Event, 16)
	done := make(chan error, 1)
	go func() {
		done <- s.engine.Process(r.Context(), counsel.Request{
			SessionID: req.SessionID,
			Input:     req.Message,
			Mode:      counsel.Mode(req.Mode),
		}, ch)
	}()

	for ev := range ch {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("编码事件失败", "error", err)
			continue
		}
		if _, err := w.Write([]byte("data: ")); err != nil {
			break
		}
		if _, err := w.Write(data); err != nil {
			break
		}
		if _, err := w.Write([]byte("\n\n")); err != nil {
			break
		}
		flusher.Flush()
	}

	// A failed turn already emitted its error event; nothing more to send.
	if err := <-done; err != nil {
		s.logger.Warn("对话处理失败", "session", req.SessionID, "error", err)
	}
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	cleared := s.engine.ClearContext(r.Context(), sessionID)

	message := "会话不存在或已清除"
	if cleared {
		message = "会话已清除"
	}
	s.logger.Info("清除会话", "session", sessionID, "cleared", cleared)
	writeJSON(w, http.StatusOK, map[string]any{
		"code":    0,
		"message": message,
		"data":    map[string]string{"session_id": sessionID},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
