package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"regdesk/internal/logger"
	"regdesk/internal/models"
	"regdesk/internal/order"
)

// How long detached side effects may run after the response is written.
const effectTimeout = 30 * time.Second

type Handler struct {
	OrderService *order.OrderService
	Logger       *logger.Logger
}

func NewHandler(orderService *order.OrderService) *Handler {
	return &Handler{
		OrderService: orderService,
		Logger:       logger.NewLogger(),
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/orders/{orderId}", h.GetOrder)
		r.Post("/orders/{orderId}/payments", h.PayOrder)
		r.Route("/attendances/{attendanceId}", func(r chi.Router) {
			r.Post("/orders", h.CreateOrder)
			r.Get("/balance", h.GetBalance)
			r.Post("/mark-paid", h.MarkPaid)
			r.Post("/check-in", h.CheckIn)
			r.Post("/check-out", h.CheckOut)
		})
	})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Info("API", fmt.Sprintf("GetOrder: orderId=%s", orderID))

	orderData, err := h.OrderService.GetOrder(r.Context(), orderID)
	if err != nil {
		h.writeError(w, "GetOrder", err)
		return
	}

	h.writeJSON(w, http.StatusOK, orderData)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	attendanceID := chi.URLParam(r, "attendanceId")
	h.Logger.Info("API", fmt.Sprintf("CreateOrder: attendanceId=%s", attendanceID))

	var req struct {
		PaymentMethod string `json:"payment_method,omitempty"`
		PricingTierID string `json:"pricing_tier_id,omitempty"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	created, effects, err := h.OrderService.CreateOrder(r.Context(), attendanceID, order.OrderOverrides{
		PaymentMethod: req.PaymentMethod,
		PricingTierID: req.PricingTierID,
	})
	if err != nil {
		h.writeError(w, "CreateOrder", err)
		return
	}
	h.runEffects(effects)

	h.writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	attendanceID := chi.URLParam(r, "attendanceId")

	owed, err := h.OrderService.AmountOwed(r.Context(), attendanceID)
	if err != nil {
		h.writeError(w, "GetBalance", err)
		return
	}
	unpaid, err := h.OrderService.UnpaidOrder(r.Context(), attendanceID)
	if err != nil {
		h.writeError(w, "GetBalance", err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"attendance_id": attendanceID,
		"amount_owed":   owed,
		"unpaid_order":  unpaid,
	})
}

func (h *Handler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	attendanceID := chi.URLParam(r, "attendanceId")
	h.Logger.Info("API", fmt.Sprintf("MarkPaid: attendanceId=%s", attendanceID))

	var info models.PaymentInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	settled, effects, err := h.OrderService.MarkPaid(r.Context(), attendanceID, info)
	if err != nil {
		h.writeError(w, "MarkPaid", err)
		return
	}
	h.runEffects(effects)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{"orders": settled})
}

func (h *Handler) PayOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	h.Logger.Info("API", fmt.Sprintf("PayOrder: orderId=%s", orderID))

	var req struct {
		PaymentMethod string                `json:"payment_method"`
		Payload       models.PaymentPayload `json:"payload"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.PaymentMethod == "" {
		http.Error(w, "payment_method is required", http.StatusBadRequest)
		return
	}

	paid, effects, err := h.OrderService.Pay(r.Context(), orderID, req.PaymentMethod, req.Payload)
	if err != nil {
		h.writeError(w, "PayOrder", err)
		return
	}
	h.runEffects(effects)

	status := http.StatusOK
	if paid.HasPaymentErrors() {
		// The payment did not go through but the order records why.
		status = http.StatusPaymentRequired
	}
	h.writeJSON(w, status, paid)
}

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	attendanceID := chi.URLParam(r, "attendanceId")
	h.Logger.Info("API", fmt.Sprintf("CheckIn: attendanceId=%s", attendanceID))

	attendance, err := h.OrderService.CheckIn(r.Context(), attendanceID)
	if errors.Is(err, order.ErrBalanceOutstanding) {
		owed, _ := h.OrderService.AmountOwed(r.Context(), attendanceID)
		h.writeJSON(w, http.StatusPaymentRequired, map[string]interface{}{
			"error":       "balance outstanding",
			"amount_owed": owed,
		})
		return
	}
	if err != nil {
		h.writeError(w, "CheckIn", err)
		return
	}

	h.writeJSON(w, http.StatusOK, attendance)
}

func (h *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	attendanceID := chi.URLParam(r, "attendanceId")

	attendance, err := h.OrderService.CheckOut(r.Context(), attendanceID)
	if err != nil {
		h.writeError(w, "CheckOut", err)
		return
	}

	h.writeJSON(w, http.StatusOK, attendance)
}

// runEffects detaches side effects from the request so a slow SMTP server
// never holds the response.
func (h *Handler) runEffects(effects []order.Effect) {
	if len(effects) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), effectTimeout)
		defer cancel()
		h.OrderService.RunEffects(ctx, effects)
	}()
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.Logger.Error("API", fmt.Sprintf("failed to encode response: %v", err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, op string, err error) {
	h.Logger.Error("API", fmt.Sprintf("%s: %v", op, err))

	switch {
	case errors.Is(err, sql.ErrNoRows):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, order.ErrConflict):
		http.Error(w, "Order was modified concurrently, retry", http.StatusConflict)
	case errors.Is(err, order.ErrAttendanceBusy):
		http.Error(w, "Attendance is being settled, retry", http.StatusLocked)
	case errors.Is(err, order.ErrPricingUnresolved):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}
