package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	orderdomain "github.com/matbakhapp/matbakh/internal/order/domain"
)

func (s *Server) registerOrderRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/orders", s.Checkout)
	v1.GET("/orders/:id", s.GetOrderByID)
	v1.GET("/sub-orders/:id", s.GetSubOrderByID)
	v1.PATCH("/sub-orders/:id/status", s.UpdateSubOrderStatus)
	v1.POST("/sub-orders/:id/issues", s.ReportSubOrderIssue)

	v1.GET("/offers/:id/stock", s.GetOfferStock)
}

func (s *Server) Checkout(c *gin.Context) {
	var req orderdomain.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}
	if key := strings.TrimSpace(c.GetHeader("Idempotency-Key")); key != "" {
		req.IdempotencyKey = key
	}

	order, err := s.orderSvc.Checkout(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": order})
}

func (s *Server) GetOrderByID(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	order, err := s.orderSvc.GetOrder(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": order})
}

func (s *Server) GetSubOrderByID(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	sub, err := s.orderSvc.GetSubOrder(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}

func (s *Server) UpdateSubOrderStatus(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req orderdomain.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}
	req.SubOrderID = id

	sub, err := s.orderSvc.UpdateSubOrderStatus(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}

func (s *Server) ReportSubOrderIssue(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req orderdomain.ReportIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}
	req.SubOrderID = id

	sub, err := s.orderSvc.ReportIssue(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": sub})
}

func (s *Server) GetOfferStock(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	info, err := s.stockSvc.GetStock(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"available": info.Available,
		"stock":     info.Stock,
		"source":    info.Source,
	}})
}

func parseID(c *gin.Context) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.Param("id"))
	id, err := snowflake.ParseString(raw)
	if err != nil {
		return 0, newValidationError("id", "invalid_id", "invalid id")
	}
	return id, nil
}
