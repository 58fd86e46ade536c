package panel

import (
	"encoding/json"
	"net/http"

	"github.com/haasonsaas/sentineld/internal/session"
	"github.com/haasonsaas/sentineld/pkg/model"
)

// sseFrame is the wire shape of one POST /api/chat event (spec §6:
// "{type: text|tool_start|tool_result|done|error, ...}").
type sseFrame struct {
	Type    string          `json:"type"`
	Text    string          `json:"text,omitempty"`
	Tool    string          `json:"tool,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
	Result  string          `json:"result,omitempty"`
	Message string          `json:"message,omitempty"`
}

// handleChat implements POST /api/chat: loads or resumes a session and
// streams the model's reply as server-sent events, translating
// session.Engine.SendStream's internal Event channel frame by frame.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body struct {
		SessionID string `json:"session_id"`
		Text      string `json:"text"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if !validSessionID(body.SessionID) {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	role := h.ChatRole
	if role == "" {
		role = model.RoleDefault
	}
	sess, err := h.Sessions.Load(body.SessionID, role, model.SessionLimits{}, false)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := h.Sessions.SendStream(r.Context(), sess, body.Text)
	for evt := range events {
		frame := toSSEFrame(evt)
		writeSSEFrame(w, frame)
		flusher.Flush()
	}
}

func toSSEFrame(evt session.Event) sseFrame {
	switch evt.Kind {
	case session.EventText:
		return sseFrame{Type: "text", Text: evt.Text}
	case session.EventToolStart:
		frame := sseFrame{Type: "tool_start"}
		if evt.ToolCall != nil {
			frame.Tool = evt.ToolCall.Name
			frame.Args = evt.ToolCall.Arguments
		}
		return frame
	case session.EventToolResult:
		frame := sseFrame{Type: "tool_result", Result: evt.Result}
		if evt.ToolCall != nil {
			frame.Tool = evt.ToolCall.Name
		}
		return frame
	case session.EventError:
		msg := ""
		if evt.Err != nil {
			msg = evt.Err.Error()
		}
		return sseFrame{Type: "error", Message: msg}
	default:
		return sseFrame{Type: "done"}
	}
}

func writeSSEFrame(w http.ResponseWriter, frame sseFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(data)
	_, _ = w.Write([]byte("\n\n"))
}
