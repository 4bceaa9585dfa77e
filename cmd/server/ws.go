package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lychee-technology/viewplane"
)

// clientMessage is the envelope for all client-to-server messages.
type clientMessage struct {
	Type string          `json:"type"` // "hello", "heartbeat", "screen", "liveScreen", "form", "panels", "subscribe"
	ID   string          `json:"id"`   // client-assigned request ID
	Data json.RawMessage `json:"data,omitempty"`
}

// serverMessage is the envelope for all server-to-client messages. Pushed
// events carry a topic; request replies echo the client request ID.
type serverMessage struct {
	Type      string `json:"type"` // "welcome", "screen", "liveScreen", "form", "panels", "push", "error"
	Topic     string `json:"topic,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// helloData identifies the connecting client node.
type helloData struct {
	NodeID      string `json:"node_id"`
	UserID      string `json:"user_id"`
	Platform    string `json:"platform"`
	Locale      string `json:"locale"`
	FirstNode   bool   `json:"first_node"`
	UserTrusted bool   `json:"user_trusted"`
	Cloud       bool   `json:"cloud"`
}

// viewRequestData asks for a screen or form by ID.
type viewRequestData struct {
	ID string `json:"id"`
}

// subscribeData registers interest in one element's backing property.
type subscribeData struct {
	ElementID string `json:"element_id"`
	OwnerID   string `json:"owner_id"`
	DataItem  string `json:"data_item"`
	Live      *bool  `json:"live,omitempty"`
}

type errorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// sessionHub tracks open websocket connections by node and delivers
// server-initiated pushes to them. It is the engine's outbound channel.
type sessionHub struct {
	origins      []string
	writeTimeout time.Duration

	mu    sync.RWMutex
	conns map[string]*websocket.Conn
}

func newSessionHub(cfg viewplane.ServerConfig) *sessionHub {
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &sessionHub{
		origins:      origins,
		writeTimeout: cfg.WriteTimeout,
		conns:        make(map[string]*websocket.Conn),
	}
}

// Send pushes a topic-tagged payload to one connected node. Nodes that
// have disconnected since registration report an error and the caller
// decides whether to drop the subscription.
func (h *sessionHub) Send(nodeID, topic string, payload any) error {
	h.mu.RLock()
	conn, ok := h.conns[nodeID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("node %s is not connected", nodeID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, serverMessage{
		Type:  "push",
		Topic: topic,
		Data:  payload,
	})
}

// serveWS upgrades to websocket and runs the per-connection message loop.
func (h *sessionHub) serveWS(engine viewplane.ViewEngine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: h.origins,
		})
		if err != nil {
			zap.S().Warnw("websocket accept failed", "error", err)
			return
		}
		defer conn.CloseNow()

		ctx := r.Context()
		var nodeID string
		var cc viewplane.ClientContext
		defer func() {
			if nodeID == "" {
				return
			}
			h.detach(nodeID, conn)
			engine.UnsubscribeNode(nodeID)
		}()

		for {
			var msg clientMessage
			if err := wsjson.Read(ctx, conn, &msg); err != nil {
				if status := websocket.CloseStatus(err); status != -1 {
					zap.S().Debugw("websocket closed", "node", nodeID, "status", status)
				}
				return
			}

			switch msg.Type {
			case "hello":
				nodeID, cc = h.handleHello(ctx, conn, engine, msg)
			case "heartbeat":
				engine.UpdateHeartbeat(nodeID)
			case "screen":
				h.handleView(ctx, conn, msg, cc, func(id uuid.UUID) (any, error) {
					s, err := engine.GenerateScreen(ctx, id, cc)
					if s == nil && err == nil {
						return nil, nil
					}
					return s, err
				})
			case "liveScreen":
				h.handleView(ctx, conn, msg, cc, func(id uuid.UUID) (any, error) {
					s, err := engine.GenerateLiveScreen(ctx, id, cc)
					if s == nil && err == nil {
						return nil, nil
					}
					return s, err
				})
			case "form":
				h.handleView(ctx, conn, msg, cc, func(id uuid.UUID) (any, error) {
					f, err := engine.MaterializeForm(ctx, id, cc)
					if f == nil && err == nil {
						return nil, nil
					}
					return f, err
				})
			case "panels":
				h.send(ctx, conn, serverMessage{
					Type:      "panels",
					RequestID: msg.ID,
					Data:      engine.AssembleDynamicScreens(ctx, cc),
				})
			case "subscribe":
				h.handleSubscribe(ctx, conn, engine, msg, nodeID)
			default:
				h.sendError(ctx, conn, msg.ID, "unknown_type", fmt.Sprintf("unknown message type: %s", msg.Type))
			}
		}
	}
}

func (h *sessionHub) handleHello(ctx context.Context, conn *websocket.Conn, engine viewplane.ViewEngine, msg clientMessage) (string, viewplane.ClientContext) {
	var data helloData
	if err := json.Unmarshal(msg.Data, &data); err != nil || data.NodeID == "" {
		h.sendError(ctx, conn, msg.ID, "invalid_hello", "hello requires a node_id")
		return "", viewplane.ClientContext{}
	}

	platform := viewplane.Platform(data.Platform)
	if platform == "" {
		platform = viewplane.PlatformDesktop
	}
	cc := viewplane.ClientContext{
		UserID:        data.UserID,
		NodeID:        data.NodeID,
		Platform:      platform,
		Locale:        data.Locale,
		IsFirstNode:   data.FirstNode,
		IsUserTrusted: data.UserTrusted,
		IsMobile:      platform == viewplane.PlatformMobile,
		IsCloud:       data.Cloud,
	}

	h.mu.Lock()
	h.conns[data.NodeID] = conn
	h.mu.Unlock()

	known := engine.RegisterNode(data.NodeID, "", "", "", nil)
	zap.S().Infow("client node attached", "node", data.NodeID, "user", data.UserID, "known", known)

	h.send(ctx, conn, serverMessage{
		Type:      "welcome",
		RequestID: msg.ID,
		Data:      map[string]bool{"known": known},
	})
	return data.NodeID, cc
}

func (h *sessionHub) handleView(ctx context.Context, conn *websocket.Conn, msg clientMessage, cc viewplane.ClientContext, gen func(uuid.UUID) (any, error)) {
	if cc.NodeID == "" {
		h.sendError(ctx, conn, msg.ID, "no_session", "send hello first")
		return
	}
	var data viewRequestData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		h.sendError(ctx, conn, msg.ID, "invalid_data", "invalid view request")
		return
	}
	id, err := uuid.Parse(data.ID)
	if err != nil {
		h.sendError(ctx, conn, msg.ID, "invalid_id", "view request requires a valid id")
		return
	}

	result, err := gen(id)
	if err != nil {
		zap.S().Errorw("view generation failed", "id", id, "node", cc.NodeID, "error", err)
		h.sendError(ctx, conn, msg.ID, "generate_failed", "view generation failed")
		return
	}
	h.send(ctx, conn, serverMessage{
		Type:      msg.Type,
		RequestID: msg.ID,
		Data:      result,
	})
}

func (h *sessionHub) handleSubscribe(ctx context.Context, conn *websocket.Conn, engine viewplane.ViewEngine, msg clientMessage, nodeID string) {
	if nodeID == "" {
		h.sendError(ctx, conn, msg.ID, "no_session", "send hello first")
		return
	}
	var data subscribeData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		h.sendError(ctx, conn, msg.ID, "invalid_data", "invalid subscribe request")
		return
	}
	known := engine.RegisterNode(nodeID, data.ElementID, data.OwnerID, data.DataItem, data.Live)
	h.send(ctx, conn, serverMessage{
		Type:      "subscribed",
		RequestID: msg.ID,
		Data:      map[string]bool{"known": known},
	})
}

// detach removes the node's connection unless a newer connection for the
// same node has already replaced it.
func (h *sessionHub) detach(nodeID string, conn *websocket.Conn) {
	h.mu.Lock()
	if h.conns[nodeID] == conn {
		delete(h.conns, nodeID)
	}
	h.mu.Unlock()
}

func (h *sessionHub) send(ctx context.Context, conn *websocket.Conn, msg serverMessage) {
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		zap.S().Warnw("websocket write failed", "error", err)
	}
}

func (h *sessionHub) sendError(ctx context.Context, conn *websocket.Conn, requestID, code, message string) {
	h.send(ctx, conn, serverMessage{
		Type:      "error",
		RequestID: requestID,
		Data:      errorData{Code: code, Message: message},
	})
}
