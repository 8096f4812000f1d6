package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"tawsil-backend/internal/database"
	"tawsil-backend/internal/middleware"
	"tawsil-backend/pkg/utils"
)

type AvailabilityRequest struct {
	Available bool `json:"available"`
}

// SetAvailability toggles whether a driver receives new-order offers.
// Independent of any active assignment.
func SetAvailability(drivers *database.DriverStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.Error(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var req AvailabilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.Error(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		if err := drivers.SetAvailability(r.Context(), claims.UserID, req.Available); err != nil {
			log.Printf("❌ Failed to set availability for %s: %v", claims.UserID, err)
			utils.Error(w, http.StatusInternalServerError, "Failed to update availability")
			return
		}

		utils.Success(w, map[string]interface{}{"ok": true, "available": req.Available})
	}
}

type FCMTokenRequest struct {
	Token string `json:"token"`
}

// RegisterFCMToken stores a driver device's push token for new-order offers.
func RegisterFCMToken(drivers *database.DriverStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.Error(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var req FCMTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
			utils.Error(w, http.StatusBadRequest, "token is required")
			return
		}

		if err := drivers.SetFCMToken(r.Context(), claims.UserID, req.Token); err != nil {
			utils.Error(w, http.StatusInternalServerError, "Failed to register token")
			return
		}

		utils.Success(w, map[string]interface{}{"ok": true})
	}
}

// GetAllDrivers serves the staff fleet listing.
func GetAllDrivers(drivers *database.DriverStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := drivers.ListDrivers(r.Context())
		if err != nil {
			utils.Error(w, http.StatusInternalServerError, "Failed to load drivers")
			return
		}
		utils.Success(w, map[string]interface{}{"drivers": list})
	}
}

// GetActiveDrivers lists drivers currently mid-delivery with their last fix.
func GetActiveDrivers(drivers *database.DriverStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := drivers.ListActiveDrivers(r.Context())
		if err != nil {
			utils.Error(w, http.StatusInternalServerError, "Failed to load active drivers")
			return
		}
		utils.Success(w, map[string]interface{}{"drivers": list})
	}
}
