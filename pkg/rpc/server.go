package rpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/talsheldon/mcp-league/pkg/protocol"
)

// Handler processes one validated inbound message and returns the reply.
type Handler interface {
	HandleMessage(ctx context.Context, msg *protocol.Message) (*protocol.Message, error)
}

// Server exposes an agent's single remote-call endpoint at POST /mcp.
type Server struct {
	sender  string
	handler Handler
	engine  *gin.Engine
	http    *http.Server
}

// NewServer creates the endpoint for an agent. sender is the agent's wire
// identity (e.g. "league_manager", "referee:REF01") used on error envelopes.
func NewServer(sender string, handler Handler) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		sender:  sender,
		handler: handler,
		engine:  engine,
	}
	engine.POST("/mcp", s.handleRPC)
	return s
}

// handleRPC decodes the JSON-RPC wrapper, validates the envelope, and
// dispatches to the handler. Envelope validation failures produce a
// LEAGUE_ERROR result without touching agent state.
func (s *Server) handleRPC(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			JSONRPC: "2.0",
			ID:      1,
			Error:   &ResponseError{Code: internalErrorCode, Message: err.Error()},
		})
		return
	}
	if req.ID == nil {
		req.ID = 1
	}

	if verr := protocol.Validate(req.Params.Message); verr != nil {
		slog.Warn("Rejected invalid message",
			"error_code", verr.Code,
			"description", verr.Code.Description())
		reply := protocol.NewLeagueError(s.sender, protocol.ConversationIDOf(req.Params.Message), verr)
		s.respond(c, req.ID, reply)
		return
	}

	var msg protocol.Message
	if err := json.Unmarshal(req.Params.Message, &msg); err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &ResponseError{Code: internalErrorCode, Message: err.Error()},
		})
		return
	}

	reply, err := s.handler.HandleMessage(c.Request.Context(), &msg)
	if err != nil {
		slog.Error("Handler error",
			"message_type", msg.MessageType,
			"sender", msg.Sender,
			"error", err)
		c.JSON(http.StatusInternalServerError, Response{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error:   &ResponseError{Code: internalErrorCode, Message: err.Error()},
		})
		return
	}
	s.respond(c, req.ID, reply)
}

func (s *Server) respond(c *gin.Context, id any, reply *protocol.Message) {
	result, err := json.Marshal(reply)
	if err != nil {
		c.JSON(http.StatusInternalServerError, Response{
			JSONRPC: "2.0",
			ID:      id,
			Error:   &ResponseError{Code: internalErrorCode, Message: err.Error()},
		})
		return
	}
	c.JSON(http.StatusOK, Response{JSONRPC: "2.0", ID: id, Result: result})
}

// Engine exposes the gin engine for httptest-based tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Start blocks serving on addr until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}
