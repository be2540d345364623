package handlers

import "github.com/gin-gonic/gin"

// Routes bundles the handler groups and mounts the dashboard API
// surface. Tests mount the same tree against fakes.
type Routes struct {
	Auth     *Auth
	Deposits *Deposits
	Data     *Data
	Admin    *Admin
}

func (r *Routes) RegisterRoutes(router *gin.Engine) {
	auth := router.Group("/v1/auth")
	{
		auth.POST("/login", r.Auth.Login)
		auth.POST("/2fa/verify", r.Auth.Verify2FA)
		auth.POST("/logout", r.Auth.Logout)
		auth.POST("/register", r.Auth.Register)
	}

	authed := router.Group("/v1", SessionRequired(r.Auth.Manager))
	{
		authed.GET("/me", r.Auth.Me)

		authed.POST("/deposits", r.Deposits.Create)
		authed.GET("/deposits/:id", r.Deposits.Get)
		authed.POST("/deposits/:id/check", r.Deposits.Check)
		authed.DELETE("/deposits/:id", r.Deposits.Cancel)

		authed.GET("/balance", r.Data.Balance)
		authed.GET("/transactions", r.Data.Transactions)
		authed.GET("/transactions/summary", r.Data.Summary)
		authed.GET("/journey/levels", r.Data.JourneyLevels)
		authed.GET("/notifications", r.Data.Notifications)
	}

	admin := router.Group("/v1/admin", SessionRequired(r.Auth.Manager), AdminRequired())
	{
		admin.GET("/users", r.Admin.ListUsers)
		admin.POST("/users", r.Admin.CreateUser)
		admin.PUT("/users/:id", r.Admin.UpdateUser)
		admin.DELETE("/users/:id", r.Admin.DeleteUser)

		admin.GET("/managers", r.Admin.ListManagers)
		admin.POST("/managers", r.Admin.CreateManager)
		admin.PUT("/managers/:id", r.Admin.UpdateManager)
		admin.DELETE("/managers/:id", r.Admin.DeleteManager)

		admin.GET("/acquirers", r.Admin.ListAcquirers)
		admin.POST("/acquirers", r.Admin.CreateAcquirer)
		admin.PUT("/acquirers/:id", r.Admin.UpdateAcquirer)
		admin.DELETE("/acquirers/:id", r.Admin.DeleteAcquirer)

		admin.GET("/settings", r.Admin.GetSettings)
		admin.PUT("/settings", r.Admin.UpdateSettings)
	}
}
