package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/chorly/internal/auth"
)

// HandleWebSocket upgrades the request and streams the events of the
// {tenant} path segment. The acting member, if any, is taken from the
// request's auth context.
func HandleWebSocket(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID := r.PathValue("tenant")
		if tenantID == "" {
			http.Error(w, "missing tenant", http.StatusBadRequest)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // displays on the household LAN connect from any origin
		})
		if err != nil {
			hub.logger.Warn("websocket accept", "tenant_id", tenantID, "error", err)
			return
		}

		NewClient(hub, conn, tenantID, auth.MemberID(r.Context())).Run(r.Context())
	}
}
