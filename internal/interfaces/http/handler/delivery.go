package handler

import (
	"github.com/gin-gonic/gin"

	subscriptionapp "github.com/selkies/backend/internal/application/subscription"
)

// StartDatesQuery bounds the candidate start date listing
type StartDatesQuery struct {
	Horizon int `form:"horizon" binding:"omitempty,min=1,max=90"`
}

// DateCheckQuery names the date to describe
type DateCheckQuery struct {
	Date string `form:"date" binding:"required,datetime=2006-01-02"`
}

// DeliveryHandler answers delivery calendar questions without a session
type DeliveryHandler struct {
	BaseHandler
	plans *subscriptionapp.Service
}

// NewDeliveryHandler creates a new DeliveryHandler
func NewDeliveryHandler(plans *subscriptionapp.Service) *DeliveryHandler {
	return &DeliveryHandler{plans: plans}
}

// RegisterRoutes registers the delivery calendar routes
func (h *DeliveryHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/delivery/start-dates", h.StartDates)
	rg.GET("/delivery/check", h.Check)
}

// StartDates lists the dates a plan can start on
//
//	GET /api/v1/delivery/start-dates?horizon=N
func (h *DeliveryHandler) StartDates(c *gin.Context) {
	var q StartDatesQuery
	if !h.BindQuery(c, &q) {
		return
	}
	dates, err := h.plans.CandidateStartDates(q.Horizon)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dates)
}

// Check describes one date: whether it is a delivery day, and if so the
// default end date and the first delivery of each weekday from it
//
//	GET /api/v1/delivery/check?date=YYYY-MM-DD
func (h *DeliveryHandler) Check(c *gin.Context) {
	var q DateCheckQuery
	if !h.BindQuery(c, &q) {
		return
	}
	resp, err := h.plans.CheckDeliveryDate(q.Date)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
