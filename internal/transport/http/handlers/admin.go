package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Firasse123/FineVerse-AIXCYBER/internal/usecase"
)

// AdminHandler exposes operator endpoints: IP unblocking and the audit trail.
type AdminHandler struct {
	security *usecase.SecurityFacade
}

// NewAdminHandler constructs an admin handler.
func NewAdminHandler(security *usecase.SecurityFacade) *AdminHandler {
	return &AdminHandler{security: security}
}

// RegisterRoutes binds admin routes to the provided router group.
func (h *AdminHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.DELETE("/ip-blocks/:ip", h.Unblock)
	r.GET("/audit", h.Trail)
	r.GET("/audit/integrity", h.VerifyIntegrity)
	r.GET("/audit/stats", h.Statistics)
	r.GET("/audit/export", h.Export)
}

// Unblock lifts an IP block.
func (h *AdminHandler) Unblock(c *gin.Context) {
	var req UnblockRequest
	_ = c.ShouldBindJSON(&req)

	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		actor = strings.TrimSpace(c.GetHeader("X-Actor"))
	}

	if err := h.security.Unblock(c.Request.Context(), c.Param("ip"), actor); err != nil {
		RespondWithDomainError(c, err, "failed to unblock ip")
		return
	}
	c.JSON(http.StatusOK, MessageResponse{Message: "ip unblocked"})
}

// Trail lists audit entries, optionally for one user.
func (h *AdminHandler) Trail(c *gin.Context) {
	entries, err := h.security.AuditTrail(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		RespondWithDomainError(c, err, "failed to load audit trail")
		return
	}

	payload := make([]AuditEntryPayload, 0, len(entries))
	for _, entry := range entries {
		payload = append(payload, newAuditEntryPayload(entry))
	}
	c.JSON(http.StatusOK, AuditTrailResponse{Entries: payload, Total: len(payload)})
}

// VerifyIntegrity re-hashes every audit entry. A violation is reported with 409.
func (h *AdminHandler) VerifyIntegrity(c *gin.Context) {
	report, err := h.security.VerifyAuditIntegrity(c.Request.Context())
	if err != nil {
		RespondWithDomainError(c, err, "failed to verify audit integrity")
		return
	}

	status := http.StatusOK
	if !report.IntegrityOK {
		status = http.StatusConflict
	}
	c.JSON(status, report)
}

// Statistics summarises the audit trail.
func (h *AdminHandler) Statistics(c *gin.Context) {
	stats, err := h.security.AuditStatistics(c.Request.Context())
	if err != nil {
		RespondWithDomainError(c, err, "failed to load audit statistics")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Export streams the trail as JSON lines.
func (h *AdminHandler) Export(c *gin.Context) {
	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Content-Disposition", `attachment; filename="audit.jsonl"`)
	c.Status(http.StatusOK)

	if _, err := h.security.ExportAudit(c.Request.Context(), c.Writer); err != nil {
		_ = c.Error(err)
	}
}
