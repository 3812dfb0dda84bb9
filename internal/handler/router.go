package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/munlink-zambales/claimdesk-api/internal/middleware"
	"github.com/munlink-zambales/claimdesk-api/internal/models"
)

// Routes groups the handlers mounted under the API prefix.
type Routes struct {
	Prefix    string
	Tokens    middleware.TokenValidator
	Claims    *ClaimHandler
	Residents *ResidentClaimHandler
	Metrics   *MetricsHandler
}

// Register mounts the claim desk API on r.
func Register(r *gin.Engine, routes Routes) {
	r.GET("/health", routes.Metrics.Health)
	r.GET("/ready", routes.Metrics.Ready)
	r.GET("/metrics", routes.Metrics.Prometheus)

	api := r.Group(routes.Prefix)

	// Signed links are their own credential so residents can open them in an <img>.
	api.GET("/claims/qr/:signature", routes.Residents.QRImage)

	authed := api.Group("")
	authed.Use(middleware.JWT(routes.Tokens))

	resident := authed.Group("/documents/requests")
	resident.Use(middleware.RequireRoles(models.RoleResident))
	resident.GET("/:id/claim-ticket", routes.Residents.GetTicket)
	resident.GET("/:id/claim-ticket.pdf", routes.Residents.TicketPDF)

	admin := authed.Group("/admin")
	admin.Use(middleware.RequireStaff())
	admin.POST("/documents/requests/:id/ready-for-pickup", routes.Claims.ReadyForPickup)
	admin.POST("/documents/requests/:id/claim-token", routes.Claims.Regenerate)
	admin.PUT("/documents/requests/:id/status", routes.Claims.UpdateStatus)
	admin.POST("/claim/verify", routes.Claims.Verify)
}
