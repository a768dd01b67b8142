package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/rpgsheets/backend/internal/interfaces/http/router"
)

// GenerationRoutes creates the route group for generation jobs. Every route
// requires a caller identity.
func GenerationRoutes(handler *GenerationHandler, identity gin.HandlerFunc) *router.DomainGroup {
	group := router.NewDomainGroup("generation", "/generation")
	group.Use(identity)

	jobs := group.Group("jobs", "/jobs")
	jobs.POST("", handler.CreateJob)
	jobs.GET("", handler.ListJobs)
	jobs.GET("/:id", handler.GetJob)
	jobs.GET("/:id/status", handler.GetJobStatus)
	jobs.POST("/:id/relaunch", handler.RelaunchJob)
	jobs.DELETE("/:id", handler.DeleteJob)

	// Artifact access
	jobs.GET("/:id/download", handler.DownloadJob)
	jobs.POST("/:id/share", handler.ShareJob)
	jobs.DELETE("/:id/share", handler.RevokeShare)

	return group
}

// SharedRoutes creates the public route group for share links
func SharedRoutes(handler *GenerationHandler) *router.DomainGroup {
	return router.NewDomainGroup("shared", "/shared").
		GET("/:token", handler.DownloadShared)
}

// AdminRoutes creates the route group for maintenance endpoints
func AdminRoutes(handler *AdminHandler, identity gin.HandlerFunc) *router.DomainGroup {
	group := router.NewDomainGroup("admin", "/admin")
	group.Use(identity)
	group.POST("/generation/sweep", handler.Sweep)
	return group
}

// SystemRoutes creates the route group for health probes
func SystemRoutes(handler *SystemHandler) *router.DomainGroup {
	return router.NewDomainGroup("system", "").
		GET("/health", handler.Health)
}
