package health

import (
	"net/http"
	"time"

	"github.com/vocegate/vocegate/internal/toolkit"
)

// SessionCounts reports the point-in-time session/socket load a DomainHandler
// describes. Implemented by *gateway.Gateway; kept as an interface here so
// this package never imports gateway (gateway already sits above modelservice
// and toolkit in the dependency graph).
type SessionCounts interface {
	// ActiveSessions is the number of sessions currently indexed in the
	// gateway's session Registry.
	ActiveSessions() int
	// SocketConnections is the number of open client WebSocket connections,
	// including ones still negotiating initializeConnection.
	SocketConnections() int
}

// RegionSource reports the model-service regions currently reachable. An
// internal/modelservice.Provider satisfies this directly.
type RegionSource interface {
	Regions() []string
}

// toolsResult is the JSON response body for GET /api/tools.
type toolsResult struct {
	Tools []toolkit.ToolSpec `json:"tools"`
}

// ToolsHandler serves GET /api/tools: the set of tools the gateway can
// currently dispatch, as offered to connecting clients.
type ToolsHandler struct {
	tools *toolkit.Registry
}

// NewToolsHandler returns a ToolsHandler backed by tools.
func NewToolsHandler(tools *toolkit.Registry) *ToolsHandler {
	return &ToolsHandler{tools: tools}
}

// ServeHTTP writes {"tools":[{name,description,schema}, ...]} for every
// registered tool, unfiltered — per-connection tool enablement is a
// negotiation between a client and its own session, not a property of the
// operational endpoint.
func (h *ToolsHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, toolsResult{Tools: h.tools.Specs(nil)})
}

// domainResult is the JSON response body for GET /health.
type domainResult struct {
	Status            string    `json:"status"`
	Timestamp         time.Time `json:"timestamp"`
	ActiveSessions    int       `json:"activeSessions"`
	SocketConnections int       `json:"socketConnections"`
	Regions           []string  `json:"regions"`
}

// DomainHandler serves GET /health: a vocegate-specific snapshot of gateway
// load and model-service region reachability, distinct from the /healthz and
// /readyz liveness/readiness pair Handler already provides.
type DomainHandler struct {
	sessions SessionCounts
	regions  RegionSource
}

// NewDomainHandler returns a DomainHandler reporting sessions' current
// counts and regions' configured regions.
func NewDomainHandler(sessions SessionCounts, regions RegionSource) *DomainHandler {
	return &DomainHandler{sessions: sessions, regions: regions}
}

// ServeHTTP always returns 200; vocegate considers itself "ok" so long as it
// can answer the request at all; depth of degradation (e.g. zero reachable
// regions) is visible in the body for a caller to interpret.
func (h *DomainHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, domainResult{
		Status:            "ok",
		Timestamp:         time.Now().UTC(),
		ActiveSessions:    h.sessions.ActiveSessions(),
		SocketConnections: h.sessions.SocketConnections(),
		Regions:           h.regions.Regions(),
	})
}

// Register adds the /health and /api/tools routes to mux.
func RegisterDomain(mux *http.ServeMux, domain *DomainHandler, tools *ToolsHandler) {
	mux.Handle("GET /health", domain)
	mux.Handle("GET /api/tools", tools)
}
