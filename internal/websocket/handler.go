package websocket

import (
	"log"
	"net/http"
	"os"

	"tawsil-backend/internal/dispatch"
	"tawsil-backend/internal/middleware"
	"tawsil-backend/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins in development
		// TODO: Restrict in production
		return true
	},
}

// HandleWebSocket upgrades an HTTP connection to a dispatch-channel
// connection. Drivers and staff present a JWT via the token query parameter;
// connections without a token become anonymous viewers that can only join
// order topics (the public customer tracking page).
func HandleWebSocket(hub *Hub, orders dispatch.OrderStore, coord *dispatch.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.URL.Query().Get("token")

		userID := ""
		role := "viewer"

		if tokenString != "" {
			jwtSecret := os.Getenv("APP_JWT_SECRET")
			if jwtSecret == "" {
				log.Println("❌ JWT secret not configured")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecret), nil
			})

			if err != nil || !token.Valid {
				log.Printf("❌ Invalid token in query parameter: %v", err)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				log.Println("❌ Failed to parse claims")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			userID, _ = claims["user_id"].(string)
			role, _ = claims["role"].(string)
			if userID == "" || role == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		} else if userClaims, ok := middleware.GetUserFromContext(r); ok {
			// Fallback: token already validated by the Auth middleware.
			userID = userClaims.UserID
			role = userClaims.Role
		}

		if role != models.RoleDriver && role != models.RoleStaff && role != models.RoleAdmin && role != "viewer" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("❌ WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(userID, role, conn, hub, orders, coord)
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()

		log.Printf("✅ WebSocket connection established (user: %s, role: %s)", userID, role)
	}
}
