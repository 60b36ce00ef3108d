package api

import (
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
)

// maxQueryBodyBytes bounds the /api/query request body.
const maxQueryBodyBytes = 1 << 20

// queryRequest is the body for POST /api/query.
type queryRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
	AgentID string `json:"agent_id,omitempty"`
}

// queryResponse is the body for POST /api/query.
type queryResponse struct {
	Response string `json:"response"`
	AgentID  string `json:"agent_id,omitempty"`
}

// DashboardHandler serves the status page and the JSON API behind it.
type DashboardHandler struct {
	agents Agents
	chat   ChatService
	logger *slog.Logger
}

// NewDashboardHandler creates the handler.
func NewDashboardHandler(agents Agents, chat ChatService, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{agents: agents, chat: chat, logger: logger}
}

// RegisterRoutes registers the dashboard endpoints on mux.
func (h *DashboardHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("GET /api/agents", h.handleAgents)
	mux.HandleFunc("GET /api/stats", h.handleStats)
	mux.HandleFunc("POST /api/query", h.handleQuery)
	mux.HandleFunc("POST /api/conversations/{user}/clear", h.handleClearConversation)
}

// handleAgents lists all registered agents with their counters.
func (h *DashboardHandler) handleAgents(w http.ResponseWriter, r *http.Request) {
	if h.agents == nil {
		writeJSON(w, http.StatusOK, map[string]any{"agents": []any{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": h.agents.List()})
}

// handleStats merges agent registry stats with conversation stats.
func (h *DashboardHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := make(map[string]any)
	if h.agents != nil {
		stats["agents"] = h.agents.Stats(r.Context())
	}
	if h.chat != nil {
		stats["chat"] = h.chat.Stats()
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleQuery answers a one-shot question outside Slack, for testing and the
// dashboard.
func (h *DashboardHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	if h.chat == nil {
		writeError(w, http.StatusServiceUnavailable, "chat service not configured")
		return
	}

	var req queryRequest
	body := http.MaxBytesReader(w, r.Body, maxQueryBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.UserID == "" {
		req.UserID = "dashboard"
	}

	answer := h.chat.Response(r.Context(), req.Message, req.UserID, req.AgentID)
	writeJSON(w, http.StatusOK, queryResponse{Response: answer, AgentID: req.AgentID})
}

// handleClearConversation drops one user's history. Unknown users yield 404.
func (h *DashboardHandler) handleClearConversation(w http.ResponseWriter, r *http.Request) {
	if h.chat == nil {
		writeError(w, http.StatusServiceUnavailable, "chat service not configured")
		return
	}

	user := r.PathValue("user")
	if user == "" {
		writeError(w, http.StatusBadRequest, "user is required")
		return
	}
	if !h.chat.ClearConversation(user) {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no conversation for user %q", user))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true, "user": user})
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>RAG Bot Status</title>
<style>
body { font-family: sans-serif; margin: 2rem; max-width: 60rem; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 0.4rem 0.6rem; text-align: left; }
th { background: #f4f4f4; }
.default { font-weight: bold; }
</style>
</head>
<body>
<h1>RAG Bot</h1>
<p>Provider: {{.Provider}} | Conversations: {{.Conversations}} | Messages: {{.Messages}}</p>
<h2>Agents</h2>
{{if .Agents}}
<table>
<tr><th>ID</th><th>Name</th><th>Description</th><th>Queries</th><th>Errors</th><th>Last used</th></tr>
{{range .Agents}}
<tr{{if .IsDefault}} class="default"{{end}}>
<td>{{.ID}}{{if .IsDefault}} (default){{end}}</td>
<td>{{.Info.Name}}</td>
<td>{{.Info.Description}}</td>
<td>{{.UsageCount}}</td>
<td>{{.ErrorCount}}</td>
<td>{{if .LastUsed.IsZero}}never{{else}}{{.LastUsed.Format "2006-01-02 15:04:05"}}{{end}}</td>
</tr>
{{end}}
</table>
{{else}}
<p>No agents registered.</p>
{{end}}
</body>
</html>
`))

type indexData struct {
	Provider      string
	Conversations any
	Messages      any
	Agents        []any
}

// handleIndex renders the HTML status page.
func (h *DashboardHandler) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := indexData{Provider: "none", Conversations: 0, Messages: 0}
	if h.chat != nil {
		stats := h.chat.Stats()
		if p, ok := stats["provider"].(string); ok {
			data.Provider = p
		}
		data.Conversations = stats["total_conversations"]
		data.Messages = stats["total_messages"]
	}
	if h.agents != nil {
		for _, status := range h.agents.List() {
			data.Agents = append(data.Agents, status)
		}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, data); err != nil {
		h.logger.Error("rendering status page failed", "error", err)
	}
}
