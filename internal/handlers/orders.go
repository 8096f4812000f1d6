package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"tawsil-backend/internal/dispatch"
	"tawsil-backend/internal/middleware"
	"tawsil-backend/internal/models"
	"tawsil-backend/internal/services"
	"tawsil-backend/pkg/utils"

	"github.com/go-chi/chi/v5"
)

type SubmitOrderRequest struct {
	Customer   models.Customer `json:"customer"`
	TypeOfItem string          `json:"type_of_item"`
}

// SubmitOrder is the public order intake endpoint.
func SubmitOrder(coord *dispatch.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SubmitOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.Error(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		order, err := coord.Submit(r.Context(), req.Customer, req.TypeOfItem)
		if err != nil {
			if dispatch.IsValidation(err) {
				utils.Error(w, http.StatusUnprocessableEntity, err.Error())
				return
			}
			log.Printf("❌ Order submission failed: %v", err)
			utils.Error(w, http.StatusInternalServerError, "Failed to submit order")
			return
		}

		utils.JSON(w, http.StatusCreated, map[string]interface{}{"order": order})
	}
}

// TrackOrder serves the public tracking snapshot for one order.
func TrackOrder(store dispatch.OrderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderNumber := chi.URLParam(r, "orderNumber")

		order, err := store.GetOrder(r.Context(), orderNumber)
		if err != nil {
			if errors.Is(err, dispatch.ErrOrderNotFound) {
				utils.Error(w, http.StatusNotFound, "Order not found")
				return
			}
			utils.Error(w, http.StatusInternalServerError, "Failed to load order")
			return
		}

		utils.Success(w, order.ToTrackInfo())
	}
}

type AcceptOrderRequest struct {
	OrderNumber string `json:"order_number"`
}

// AcceptOrder resolves a driver's acceptance attempt. Losing the race is an
// expected outcome and comes back as 409, not a server fault.
func AcceptOrder(coord *dispatch.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.Error(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var req AcceptOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderNumber == "" {
			utils.Error(w, http.StatusBadRequest, "order_number is required")
			return
		}

		order, err := coord.Accept(r.Context(), req.OrderNumber, claims.UserID)
		if err != nil {
			switch {
			case errors.Is(err, dispatch.ErrOrderNotFound):
				utils.Error(w, http.StatusNotFound, "Order not found")
			case errors.Is(err, models.ErrAlreadyAssigned):
				utils.Error(w, http.StatusConflict, "Order already accepted by another driver")
			case errors.Is(err, models.ErrDriverBusy):
				utils.Error(w, http.StatusConflict, "Driver already has an active delivery")
			default:
				log.Printf("❌ Accept failed for order %s: %v", req.OrderNumber, err)
				utils.Error(w, http.StatusInternalServerError, "Failed to accept order")
			}
			return
		}

		utils.Success(w, map[string]interface{}{"ok": true, "order": order})
	}
}

type CompleteOrderRequest struct {
	OrderNumber string `json:"order_number"`
}

// CompleteOrder is the driver's HTTP completion path (mirrors the
// order-delivered channel event for clients that lost their socket).
func CompleteOrder(coord *dispatch.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.Error(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var req CompleteOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderNumber == "" {
			utils.Error(w, http.StatusBadRequest, "order_number is required")
			return
		}

		order, err := coord.Complete(r.Context(), req.OrderNumber, claims.UserID, false)
		if err != nil {
			switch {
			case errors.Is(err, dispatch.ErrOrderNotFound):
				utils.Error(w, http.StatusNotFound, "Order not found")
			case errors.Is(err, models.ErrInvalidTransition):
				utils.Error(w, http.StatusConflict, "Order is not in transit")
			default:
				log.Printf("❌ Completion failed for order %s: %v", req.OrderNumber, err)
				utils.Error(w, http.StatusInternalServerError, "Failed to complete order")
			}
			return
		}

		utils.Success(w, map[string]interface{}{"ok": true, "order": order})
	}
}

// PendingOrders lists the broadcast pool for a driver who just connected and
// needs to rebuild its local pending list.
func PendingOrders(store dispatch.OrderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orders, err := store.ListPending(r.Context())
		if err != nil {
			utils.Error(w, http.StatusInternalServerError, "Failed to load pending orders")
			return
		}

		summaries := make([]models.Summary, 0, len(orders))
		for i := range orders {
			summaries = append(summaries, orders[i].ToSummary())
		}
		utils.Success(w, map[string]interface{}{"orders": summaries})
	}
}

// ListOrders serves the staff dashboard's full order table.
func ListOrders(store dispatch.OrderStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orders, err := store.ListOrders(r.Context())
		if err != nil {
			utils.Error(w, http.StatusInternalServerError, "Failed to load orders")
			return
		}
		utils.Success(w, map[string]interface{}{"orders": orders})
	}
}

type UpdateOrderStatusRequest struct {
	Status models.OrderStatus `json:"status"`
}

// UpdateOrderStatus is the staff override. The lifecycle still only moves
// forward: the single override supported is forcing in_transit -> delivered.
func UpdateOrderStatus(coord *dispatch.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderNumber := chi.URLParam(r, "orderNumber")

		var req UpdateOrderStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.Error(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		if req.Status != models.StatusDelivered {
			utils.Error(w, http.StatusBadRequest, "Only a delivered override is supported")
			return
		}

		order, err := coord.Complete(r.Context(), orderNumber, "", true)
		if err != nil {
			switch {
			case errors.Is(err, dispatch.ErrOrderNotFound):
				utils.Error(w, http.StatusNotFound, "Order not found")
			case errors.Is(err, models.ErrInvalidTransition):
				utils.Error(w, http.StatusConflict, "Order is not in transit")
			default:
				utils.Error(w, http.StatusInternalServerError, "Failed to update order")
			}
			return
		}

		utils.Success(w, map[string]interface{}{"ok": true, "order": order})
	}
}

// DeleteOrder cancels an order entirely (staff action). The assigned driver's
// persisted session is torn down by the order-cancelled broadcast this fires.
func DeleteOrder(coord *dispatch.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderNumber := chi.URLParam(r, "orderNumber")

		if _, err := coord.Cancel(r.Context(), orderNumber); err != nil {
			if errors.Is(err, dispatch.ErrOrderNotFound) {
				utils.Error(w, http.StatusNotFound, "Order not found")
				return
			}
			utils.Error(w, http.StatusInternalServerError, "Failed to delete order")
			return
		}

		utils.Success(w, map[string]interface{}{"ok": true})
	}
}

type RateOrderRequest struct {
	Rating int `json:"rating"`
}

// RateOrder attaches the customer's one-time rating after delivery.
func RateOrder(coord *dispatch.Coordinator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderNumber := chi.URLParam(r, "orderNumber")

		var req RateOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.Error(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		if err := coord.Rate(r.Context(), orderNumber, req.Rating); err != nil {
			switch {
			case errors.Is(err, dispatch.ErrOrderNotFound):
				utils.Error(w, http.StatusNotFound, "Order not found")
			case errors.Is(err, models.ErrInvalidRating):
				utils.Error(w, http.StatusUnprocessableEntity, "Rating must be between 1 and 5")
			case errors.Is(err, models.ErrNotDelivered):
				utils.Error(w, http.StatusConflict, "Order not delivered yet")
			case errors.Is(err, models.ErrAlreadyRated):
				utils.Error(w, http.StatusConflict, "Order already rated")
			default:
				utils.Error(w, http.StatusInternalServerError, "Failed to rate order")
			}
			return
		}

		utils.Success(w, map[string]interface{}{"ok": true})
	}
}

type RouteInfoRequest struct {
	Origin      models.Coordinate `json:"origin"`
	Destination models.Coordinate `json:"destination"`
}

// GetRouteInfo returns driving distance/ETA between two points. Best effort:
// when the routing backend is down the tracking views degrade to "N/A".
func GetRouteInfo(routes *services.RouteInfoClient) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RouteInfoRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.Error(w, http.StatusBadRequest, "Invalid request body")
			return
		}

		info, err := routes.Route(req.Origin, req.Destination)
		if err != nil {
			utils.Error(w, http.StatusServiceUnavailable, "Route info unavailable")
			return
		}

		utils.Success(w, info)
	}
}
