package handlers

import (
  "net/http"
  "strings"
  "sync"

  "github.com/gin-gonic/gin"
  "github.com/google/uuid"

  "github.com/orionsky/obsdb-backend/internal/sse"
)

// SSEHandler streams program-scoped edit and calc-state events. A client
// subscribes to program ids (channels); subscribe/unsubscribe can adjust a
// live stream by client id.
type SSEHandler struct {
  hub     *sse.SSEHub
  mu      sync.Mutex
  clients map[uuid.UUID]*sse.SSEClient
}

func NewSSEHandler(hub *sse.SSEHub) *SSEHandler {
  return &SSEHandler{
    hub:     hub,
    clients: make(map[uuid.UUID]*sse.SSEClient),
  }
}

func (h *SSEHandler) SSEStream(c *gin.Context) {
  client := h.hub.NewSSEClient()
  for _, program := range strings.Split(c.Query("programs"), ",") {
    program = strings.TrimSpace(program)
    if program == "" {
      continue
    }
    if _, err := uuid.Parse(program); err != nil {
      RespondError(c, http.StatusBadRequest, "validation", err)
      return
    }
    h.hub.AddChannel(client, program)
  }

  h.mu.Lock()
  h.clients[client.ID] = client
  h.mu.Unlock()

  c.Writer.Header().Set("X-SSE-Client-ID", client.ID.String())
  h.hub.ServeHTTP(c.Writer, c.Request, client)

  h.mu.Lock()
  delete(h.clients, client.ID)
  h.mu.Unlock()
  h.hub.RemoveClient(client)
}

type sseSubscriptionRequest struct {
  ClientID  uuid.UUID `json:"client_id" binding:"required"`
  ProgramID uuid.UUID `json:"program_id" binding:"required"`
}

func (h *SSEHandler) SSESubscribe(c *gin.Context) {
  var req sseSubscriptionRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "validation", err)
    return
  }
  client := h.lookup(req.ClientID)
  if client == nil {
    RespondError(c, http.StatusNotFound, "not_found", errUnknownClient)
    return
  }
  h.hub.AddChannel(client, req.ProgramID.String())
  RespondOK(c, gin.H{"status": "subscribed"})
}

func (h *SSEHandler) SSEUnsubscribe(c *gin.Context) {
  var req sseSubscriptionRequest
  if err := c.ShouldBindJSON(&req); err != nil {
    RespondError(c, http.StatusBadRequest, "validation", err)
    return
  }
  client := h.lookup(req.ClientID)
  if client == nil {
    RespondError(c, http.StatusNotFound, "not_found", errUnknownClient)
    return
  }
  h.hub.RemoveChannel(client, req.ProgramID.String())
  RespondOK(c, gin.H{"status": "unsubscribed"})
}

func (h *SSEHandler) lookup(id uuid.UUID) *sse.SSEClient {
  h.mu.Lock()
  defer h.mu.Unlock()
  return h.clients[id]
}

type clientError string

func (e clientError) Error() string { return string(e) }

const errUnknownClient = clientError("unknown sse client")
