package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rpcmux/rpcmux/upstream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Auth is handled upstream of the proxy.
		return true
	},
}

// handleWebSocket pins a client connection to a single healthy node and then
// forwards frames opaquely in both directions. Subscriptions live on one
// node for the life of the connection; they are never re-balanced
// mid-stream.
func (s *HttpServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	target, ok := s.pickWsNode()
	if !ok {
		http.Error(w, "no node with a websocket endpoint is routable", http.StatusServiceUnavailable)
		return
	}

	nodeConn, _, err := websocket.DefaultDialer.DialContext(r.Context(), target.WsEndpoint, nil)
	if err != nil {
		s.logger.Warn().Err(err).Str("nodeId", target.Id).Msg("failed to dial node websocket endpoint")
		http.Error(w, "failed to reach node websocket endpoint", http.StatusBadGateway)
		return
	}

	clientConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		nodeConn.Close()
		return
	}

	s.logger.Debug().Str("nodeId", target.Id).Msg("websocket connection pinned to node")

	errc := make(chan error, 2)
	go pump(nodeConn, clientConn, errc)
	go pump(clientConn, nodeConn, errc)

	<-errc
	clientConn.Close()
	nodeConn.Close()
}

func (s *HttpServer) pickWsNode() (upstream.NodeSnapshot, bool) {
	candidates := upstream.FilterRoutable(s.app.Registry.ListCandidates())
	ordered := s.app.Policy.Order(candidates)
	for _, snap := range ordered {
		if snap.WsEndpoint != "" {
			return snap, true
		}
	}
	return upstream.NodeSnapshot{}, false
}

func pump(dst, src *websocket.Conn, errc chan<- error) {
	for {
		msgType, msg, err := src.ReadMessage()
		if err != nil {
			errc <- err
			return
		}
		dst.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := dst.WriteMessage(msgType, msg); err != nil {
			errc <- err
			return
		}
	}
}
