package mcphttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"mcphub/internal/domain"
	"mcphub/internal/elicitation"
	"mcphub/internal/server"
	"mcphub/internal/tenant"
	"mcphub/pkg/shared/jsonrpc"
)

// ProtocolVersion is the MCP revision the group endpoints speak.
// Based on MCP Spec 2025-03-26: https://modelcontextprotocol.io/specification/2025-03-26
const ProtocolVersion = "2025-03-26"

const serverName = "mcphub"

// Handlers holds dependencies for the HTTP surface: the per-group JSON-RPC
// endpoints plus the admin/elicitation routes the web UI consumes.
type Handlers struct {
	factory *server.Factory
	coord   *elicitation.Coordinator
	hub     *elicitation.Hub
	tenants *tenant.State
	version string
	logger  *slog.Logger
}

// NewHandlers creates a new Handlers struct.
func NewHandlers(
	factory *server.Factory,
	coord *elicitation.Coordinator,
	hub *elicitation.Hub,
	tenants *tenant.State,
	version string,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		factory: factory,
		coord:   coord,
		hub:     hub,
		tenants: tenants,
		version: version,
		logger:  logger.With("component", "mcphttp_handler"),
	}
}

// Register sets up all HTTP routes.
func (h *Handlers) Register(mux *http.ServeMux) {
	// One MCP endpoint per configured group.
	mux.HandleFunc("POST /groups/{group}/mcp", h.handleGroupRPC)

	// Admin / UI endpoints.
	mux.HandleFunc("GET /groups", h.handleListGroups)
	mux.HandleFunc("GET /resource-bindings", h.handleResourceBindings)
	mux.HandleFunc("GET /elicitations", h.handleListElicitations)
	mux.HandleFunc("POST /elicitations/{id}/response", h.handleElicitationResponse)
	mux.HandleFunc("PUT /tenant", h.handleSetTenant)
	mux.HandleFunc("DELETE /tenant", h.handleClearTenant)
	mux.HandleFunc("GET /events", h.handleEvents)
}

// --- Per-group MCP endpoint --- //

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type readResourceParams struct {
	URI string `json:"uri"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type toolsCapability struct {
	ListChanged bool `json:"listChanged"`
}

type resourcesCapability struct {
	Subscribe   bool `json:"subscribe"`
	ListChanged bool `json:"listChanged"`
}

type serverCapabilities struct {
	Tools     *toolsCapability     `json:"tools,omitempty"`
	Resources *resourcesCapability `json:"resources,omitempty"`
}

type initializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    serverCapabilities `json:"capabilities"`
	ServerInfo      serverInfo         `json:"serverInfo"`
}

// handleGroupRPC implements POST /groups/{group}/mcp, the streamable JSON-RPC
// endpoint for one group. The group instance is built lazily on first use and
// cached for the process lifetime.
func (h *Handlers) handleGroupRPC(w http.ResponseWriter, r *http.Request) {
	groupName := r.PathValue("group")
	inst, err := h.factory.GetOrCreateInstance(groupName)
	if err != nil {
		h.logger.Warn("Request for unknown group", slog.String("group", groupName))
		http.Error(w, fmt.Sprintf("Unknown group: %s", groupName), http.StatusNotFound)
		return
	}

	var req jsonrpc.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("Failed to decode JSON-RPC request", slog.Any("error", err))
		h.writeError(w, nil, jsonrpc.CodeParseError, "invalid JSON")
		return
	}
	defer r.Body.Close()

	if req.IsNotification() {
		// Notifications (e.g. notifications/initialized) expect no response.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	log := h.logger.With(slog.String("group", groupName), slog.String("method", req.Method))
	log.Debug("Handling MCP request")

	switch req.Method {
	case "initialize":
		caps := serverCapabilities{Tools: &toolsCapability{}}
		if inst.HasResources() {
			caps.Resources = &resourcesCapability{}
		}
		h.writeResult(w, req.ID, initializeResult{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    caps,
			ServerInfo:      serverInfo{Name: serverName, Version: h.version},
		})

	case "ping":
		h.writeResult(w, req.ID, struct{}{})

	case "tools/list":
		tools := inst.ListTools(r.Context())
		h.writeResult(w, req.ID, mcp.ListToolsResult{Tools: tools})

	case "tools/call":
		var params callToolParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				h.writeError(w, req.ID, jsonrpc.CodeInvalidParams, "malformed tools/call params")
				return
			}
		}
		sessionID := r.Header.Get("Mcp-Session-Id")
		result, err := inst.CallTool(r.Context(), params.Name, params.Arguments, sessionID)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrInvalidRequest):
				h.writeError(w, req.ID, jsonrpc.CodeInvalidParams, err.Error())
			case errors.Is(err, domain.ErrUnknownTool):
				h.writeError(w, req.ID, jsonrpc.CodeServerErrorToolNotFound, err.Error())
			default:
				log.Error("Tool call failed at the protocol level", slog.Any("error", err))
				h.writeError(w, req.ID, jsonrpc.CodeInternalError, err.Error())
			}
			return
		}
		h.writeResult(w, req.ID, result)

	case "resources/list":
		if !inst.HasResources() {
			h.writeError(w, req.ID, jsonrpc.CodeMethodNotFound, "group exposes no resources")
			return
		}
		h.writeResult(w, req.ID, mcp.ListResourcesResult{Resources: inst.ListResources()})

	case "resources/read":
		if !inst.HasResources() {
			h.writeError(w, req.ID, jsonrpc.CodeMethodNotFound, "group exposes no resources")
			return
		}
		var params readResourceParams
		if len(req.Params) > 0 {
			if err := json.Unmarshal(req.Params, &params); err != nil {
				h.writeError(w, req.ID, jsonrpc.CodeInvalidParams, "malformed resources/read params")
				return
			}
		}
		contents, err := inst.ReadResource(r.Context(), params.URI)
		if err != nil {
			h.writeError(w, req.ID, jsonrpc.CodeServerErrorResourceNotFound, err.Error())
			return
		}
		h.writeResult(w, req.ID, mcp.ReadResourceResult{Contents: contents})

	default:
		h.writeError(w, req.ID, jsonrpc.CodeMethodNotFound, fmt.Sprintf("method not supported: %s", req.Method))
	}
}

// --- Admin endpoints --- //

func (h *Handlers) handleListGroups(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"groups": h.factory.ListGroups()})
}

func (h *Handlers) handleResourceBindings(w http.ResponseWriter, r *http.Request) {
	bindings := h.factory.ListExposedResourceBindings()
	if bindings == nil {
		bindings = []server.ResourceBinding{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"bindings": bindings})
}

func (h *Handlers) handleListElicitations(w http.ResponseWriter, r *http.Request) {
	pending := h.coord.Pending()
	if pending == nil {
		pending = []elicitation.Request{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"pending": pending})
}

type elicitationResponseBody struct {
	Action  string         `json:"action"`
	Content map[string]any `json:"content,omitempty"`
}

// handleElicitationResponse implements POST /elicitations/{id}/response, the
// response intake the confirmation UI posts to. An unknown or already
// resolved id yields handled=false, not an error; duplicate and late
// responses are expected under network retries.
func (h *Handlers) handleElicitationResponse(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body elicitationResponseBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	action := domain.ElicitAction(body.Action)
	if !action.Valid() {
		http.Error(w, fmt.Sprintf("Invalid action: %q", body.Action), http.StatusBadRequest)
		return
	}

	handled := h.coord.Resolve(id, action, body.Content)
	h.writeJSON(w, http.StatusOK, map[string]any{"handled": handled})
}

type setTenantBody struct {
	Project string `json:"project"`
}

func (h *Handlers) handleSetTenant(w http.ResponseWriter, r *http.Request) {
	var body setTenantBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if strings.TrimSpace(body.Project) == "" {
		http.Error(w, "Missing 'project' field in request body", http.StatusBadRequest)
		return
	}

	h.tenants.SetActive(body.Project)
	h.logger.Info("Active tenant set", slog.String("project", body.Project))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) handleClearTenant(w http.ResponseWriter, r *http.Request) {
	h.tenants.Clear()
	h.logger.Info("Active tenant cleared")
	w.WriteHeader(http.StatusNoContent)
}

// --- Elicitation event stream --- //

// sseEmitter adapts one open SSE connection to the coordinator's active
// emitter slot.
type sseEmitter struct {
	ch chan elicitation.Event
}

func (e *sseEmitter) Emit(event elicitation.Event) error {
	select {
	case e.ch <- event:
		return nil
	default:
		return errors.New("emitter buffer full")
	}
}

// handleEvents implements GET /events?tenant=..., a server-sent-events
// stream of elicitation requests. The connection subscribes to the tenant's
// broadcast channel and also registers itself as the process-wide active
// emitter for as long as it stays open.
func (h *Handlers) handleEvents(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant")
	if tenantID == "" {
		http.Error(w, "Missing 'tenant' query parameter", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	h.logger.Info("Elicitation event stream opened", slog.String("tenant", tenantID))

	broadcast, cancel := h.hub.Subscribe(tenantID)
	defer cancel()

	emitter := &sseEmitter{ch: make(chan elicitation.Event, 16)}
	h.coord.SetActiveEmitter(emitter)
	defer h.coord.ClearActiveEmitter(emitter)

	fmt.Fprintf(w, "event: ready\ndata: {}\n\n")
	flusher.Flush()

	for {
		var event elicitation.Event
		select {
		case <-r.Context().Done():
			h.logger.Info("Elicitation event stream closed", slog.String("tenant", tenantID))
			return
		case event = <-broadcast:
		case event = <-emitter.ch:
		}

		data, err := json.Marshal(event)
		if err != nil {
			h.logger.Error("Failed to marshal elicitation event", slog.Any("error", err))
			continue
		}
		fmt.Fprintf(w, "event: elicitation_request\ndata: %s\n\n", data)
		flusher.Flush()
	}
}

// --- Response helpers --- //

func (h *Handlers) writeResult(w http.ResponseWriter, id json.RawMessage, result any) {
	h.writeJSON(w, http.StatusOK, jsonrpc.Response{Version: jsonrpc.Version, Result: result, ID: rawID(id)})
}

func (h *Handlers) writeError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	h.writeJSON(w, http.StatusOK, jsonrpc.Response{
		Version: jsonrpc.Version,
		Error:   &jsonrpc.Error{Code: code, Message: message},
		ID:      rawID(id),
	})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode response", slog.Any("error", err))
	}
}

func rawID(id json.RawMessage) interface{} {
	if len(id) == 0 {
		return nil
	}
	return id
}
