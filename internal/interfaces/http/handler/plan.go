package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	subscriptionapp "github.com/selkies/backend/internal/application/subscription"
	"github.com/selkies/backend/internal/domain/shared"
	"github.com/selkies/backend/internal/interfaces/http/middleware"
)

// PlanHandler serves the plan configuration flow of the current session
type PlanHandler struct {
	BaseHandler
	plans    *subscriptionapp.Service
	sessions *middleware.SessionCookie
}

// NewPlanHandler creates a new PlanHandler
func NewPlanHandler(plans *subscriptionapp.Service, sessions *middleware.SessionCookie) *PlanHandler {
	return &PlanHandler{
		plans:    plans,
		sessions: sessions,
	}
}

// RegisterRoutes registers the plan routes. Everything under /plans/current
// requires the session issued by POST /plans.
func (h *PlanHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/plans", h.Start)

	current := rg.Group("/plans/current", h.sessions.Require())
	current.GET("", h.Get)
	current.DELETE("", h.Abandon)
	current.PUT("/recurrence", h.ChooseRecurrence)
	current.PUT("/dates", h.ChooseDates)
	current.PUT("/end-date", h.SetEndDate)
	current.POST("/days/:day/items/:product_id/increment", h.Increment)
	current.POST("/days/:day/items/:product_id/decrement", h.Decrement)
	current.POST("/days/:day/copy", h.CopyDay)
	current.GET("/quote", h.Quote)
	current.PUT("/address", h.EnterAddress)
	current.POST("/checkout", h.Checkout)
	current.POST("/payment/confirm", h.ConfirmPayment)
}

// Start begins a new plan session and issues its token
//
//	POST /api/v1/plans
func (h *PlanHandler) Start(c *gin.Context) {
	plan, err := h.plans.StartSession(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if err := h.sessions.Issue(c, plan.ID); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, plan)
}

// Get returns the current plan
//
//	GET /api/v1/plans/current
func (h *PlanHandler) Get(c *gin.Context) {
	plan, err := h.plans.GetPlan(c.Request.Context(), sessionID(c))
	h.respond(c, plan, err)
}

// Abandon discards the current plan and its session
//
//	DELETE /api/v1/plans/current
func (h *PlanHandler) Abandon(c *gin.Context) {
	if err := h.plans.AbandonSession(c.Request.Context(), sessionID(c)); err != nil {
		h.fail(c, err)
		return
	}
	h.sessions.Clear(c)
	h.NoContent(c)
}

// ChooseRecurrence sets one-time or recurring deliveries
//
//	PUT /api/v1/plans/current/recurrence
func (h *PlanHandler) ChooseRecurrence(c *gin.Context) {
	var req subscriptionapp.ChooseRecurrenceRequest
	if !h.BindJSON(c, &req) {
		return
	}
	plan, err := h.plans.ChooseRecurrence(c.Request.Context(), sessionID(c), req)
	h.respond(c, plan, err)
}

// ChooseDates sets the start date and, for recurring plans, the end date
//
//	PUT /api/v1/plans/current/dates
func (h *PlanHandler) ChooseDates(c *gin.Context) {
	var req subscriptionapp.ChooseDatesRequest
	if !h.BindJSON(c, &req) {
		return
	}
	plan, err := h.plans.ChooseDates(c.Request.Context(), sessionID(c), req)
	h.respond(c, plan, err)
}

// SetEndDate changes the end date of a recurring plan
//
//	PUT /api/v1/plans/current/end-date
func (h *PlanHandler) SetEndDate(c *gin.Context) {
	var req subscriptionapp.SetEndDateRequest
	if !h.BindJSON(c, &req) {
		return
	}
	plan, err := h.plans.SetEndDate(c.Request.Context(), sessionID(c), req)
	h.respond(c, plan, err)
}

// Increment adds one unit of a product to a day
//
//	POST /api/v1/plans/current/days/:day/items/:product_id/increment
func (h *PlanHandler) Increment(c *gin.Context) {
	productID, ok := h.productID(c)
	if !ok {
		return
	}
	plan, err := h.plans.Increment(c.Request.Context(), sessionID(c), c.Param("day"), productID)
	h.respond(c, plan, err)
}

// Decrement removes one unit of a product from a day
//
//	POST /api/v1/plans/current/days/:day/items/:product_id/decrement
func (h *PlanHandler) Decrement(c *gin.Context) {
	productID, ok := h.productID(c)
	if !ok {
		return
	}
	plan, err := h.plans.Decrement(c.Request.Context(), sessionID(c), c.Param("day"), productID)
	h.respond(c, plan, err)
}

// CopyDay replaces another day's basket with this day's
//
//	POST /api/v1/plans/current/days/:day/copy
func (h *PlanHandler) CopyDay(c *gin.Context) {
	var req subscriptionapp.CopyDayRequest
	if !h.BindJSON(c, &req) {
		return
	}
	plan, err := h.plans.CopyDay(c.Request.Context(), sessionID(c), c.Param("day"), req)
	h.respond(c, plan, err)
}

// Quote prices the plan
//
//	GET /api/v1/plans/current/quote
func (h *PlanHandler) Quote(c *gin.Context) {
	quote, err := h.plans.Quote(c.Request.Context(), sessionID(c))
	h.respond(c, quote, err)
}

// EnterAddress sets the delivery address
//
//	PUT /api/v1/plans/current/address
func (h *PlanHandler) EnterAddress(c *gin.Context) {
	var req subscriptionapp.AddressRequest
	if !h.BindJSON(c, &req) {
		return
	}
	plan, err := h.plans.EnterAddress(c.Request.Context(), sessionID(c), req)
	h.respond(c, plan, err)
}

// Checkout creates the payment for the plan total
//
//	POST /api/v1/plans/current/checkout
func (h *PlanHandler) Checkout(c *gin.Context) {
	checkout, err := h.plans.Checkout(c.Request.Context(), sessionID(c))
	h.respond(c, checkout, err)
}

// ConfirmPayment verifies the payment and places the order
//
//	POST /api/v1/plans/current/payment/confirm
func (h *PlanHandler) ConfirmPayment(c *gin.Context) {
	var req subscriptionapp.ConfirmPaymentRequest
	if !h.BindJSON(c, &req) {
		return
	}
	outcome, err := h.plans.ConfirmPayment(c.Request.Context(), sessionID(c), req)
	h.respond(c, outcome, err)
}

func (h *PlanHandler) respond(c *gin.Context, data any, err error) {
	if err != nil {
		h.fail(c, err)
		return
	}
	h.Success(c, data)
}

// fail also drops the cookie of a session the store no longer knows
func (h *PlanHandler) fail(c *gin.Context, err error) {
	if errors.Is(err, shared.ErrSessionExpired) {
		h.sessions.Clear(c)
	}
	h.HandleError(c, err)
}

func (h *PlanHandler) productID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("product_id"))
	if err != nil {
		h.BadRequest(c, "Invalid product ID")
		return uuid.Nil, false
	}
	return id, true
}

func sessionID(c *gin.Context) uuid.UUID {
	id, _ := middleware.GetSessionID(c)
	return id
}
