package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/matbakhapp/matbakh/internal/providers/pdf"
	settlementdomain "github.com/matbakhapp/matbakh/internal/settlement/domain"
)

func (s *Server) registerSettlementRoutes() {
	v1 := s.engine.Group("/v1")

	v1.POST("/invoices", s.GenerateInvoice)
	v1.GET("/invoices", s.ListInvoices)
	v1.GET("/invoices/:id", s.GetInvoiceByID)
	v1.POST("/invoices/:id/issue", s.IssueInvoice)
	v1.POST("/invoices/:id/lock", s.LockInvoice)
	v1.POST("/invoices/:id/void", s.VoidInvoice)
	v1.POST("/invoices/:id/payouts", s.AddPayout)
	v1.POST("/invoices/:id/pay", s.MarkInvoiceAsPaid)
	v1.GET("/invoices/:id/statement", s.DownloadStatement)
}

func (s *Server) GenerateInvoice(c *gin.Context) {
	var req settlementdomain.GenerateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	invoice, err := s.settlementSvc.GenerateInvoice(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": invoice})
}

func (s *Server) ListInvoices(c *gin.Context) {
	req := settlementdomain.ListInvoicesRequest{}
	if raw := strings.TrimSpace(c.Query("kitchenId")); raw != "" {
		id, err := snowflake.ParseString(raw)
		if err != nil {
			AbortWithError(c, newValidationError("kitchenId", "invalid_id", "invalid id"))
			return
		}
		req.KitchenID = &id
	}
	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status := settlementdomain.InvoiceStatus(raw)
		req.Status = &status
	}
	if raw := strings.TrimSpace(c.Query("period")); raw != "" {
		req.PeriodMonth = &raw
	}
	if err := c.ShouldBindQuery(&req.Page); err != nil {
		AbortWithError(c, newValidationError("page", "invalid_page", "invalid page parameters"))
		return
	}

	invoices, page, err := s.settlementSvc.ListInvoices(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoices, "pageInfo": page})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invoice, err := s.settlementSvc.GetInvoice(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) IssueInvoice(c *gin.Context) {
	s.invoiceTransition(c, s.settlementSvc.IssueInvoice)
}

func (s *Server) LockInvoice(c *gin.Context) {
	s.invoiceTransition(c, s.settlementSvc.LockInvoice)
}

func (s *Server) VoidInvoice(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}

	invoice, err := s.settlementSvc.VoidInvoice(c.Request.Context(), id, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) AddPayout(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req settlementdomain.AddPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
		return
	}
	req.InvoiceID = id

	payout, err := s.settlementSvc.AddPayout(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": payout})
}

func (s *Server) MarkInvoiceAsPaid(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	req := settlementdomain.MarkPaidRequest{InvoiceID: id}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, newValidationError("request", "invalid_request", "invalid request"))
			return
		}
		req.InvoiceID = id
	}

	invoice, err := s.settlementSvc.MarkInvoiceAsPaid(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func (s *Server) DownloadStatement(c *gin.Context) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invoice, err := s.settlementSvc.GetInvoice(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	kitchen, err := s.kitchenSvc.GetByID(c.Request.Context(), invoice.KitchenID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	reader, err := s.statements.RenderStatement(c.Request.Context(), statementData(invoice, kitchen.Name, kitchen.City))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.pdf", invoice.InvoiceNumber))
	c.DataFromReader(http.StatusOK, -1, "application/pdf", reader, nil)
}

func (s *Server) invoiceTransition(c *gin.Context, fn func(ctx context.Context, id snowflake.ID) (*settlementdomain.Invoice, error)) {
	id, err := parseID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	invoice, err := fn(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": invoice})
}

func statementData(invoice *settlementdomain.Invoice, kitchenName, kitchenCity string) pdf.StatementData {
	issueDate := ""
	if invoice.IssuedAt != nil {
		issueDate = invoice.IssuedAt.Format("2006-01-02")
	}
	vatLabel := invoice.VATLabel
	if vatLabel == "" {
		vatLabel = "VAT"
	}

	data := pdf.StatementData{
		PlatformName:    "Matbakh",
		InvoiceNumber:   invoice.InvoiceNumber,
		PeriodMonth:     invoice.PeriodMonth,
		IssueDate:       issueDate,
		Status:          string(invoice.Status),
		KitchenName:     kitchenName,
		KitchenCity:     kitchenCity,
		GrossSales:      formatMinor(invoice.GrossSales, invoice.Currency),
		CommissionTotal: formatMinor(invoice.CommissionTotal, invoice.Currency),
		VATLabel:        vatLabel,
		VATTotal:        formatMinor(invoice.VATTotal, invoice.Currency),
		NetPayable:      formatMinor(invoice.NetPayable, invoice.Currency),
		AmountPaid:      formatMinor(invoice.AmountPaid, invoice.Currency),
		AmountDue:       formatMinor(invoice.AmountDue(), invoice.Currency),
	}

	for _, line := range invoice.LineItems {
		data.Lines = append(data.Lines, pdf.StatementLine{
			SubOrderID:     line.SubOrderID.String(),
			CompletedAt:    line.CompletedAt.Format("2006-01-02"),
			Gross:          formatMinor(line.Gross, invoice.Currency),
			CommissionRate: fmt.Sprintf("%.2f%%", float64(line.CommissionRateBps)/100),
			Commission:     formatMinor(line.CommissionAmount, invoice.Currency),
			VAT:            formatMinor(line.VATAmount, invoice.Currency),
			Net:            formatMinor(line.Net, invoice.Currency),
		})
	}

	return data
}

// formatMinor renders a minor-unit amount with two decimals, e.g. 22500 SAR
// halalas as "SAR 225.00".
func formatMinor(amount int64, currency string) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s %s%d.%02d", currency, sign, amount/100, amount%100)
}
