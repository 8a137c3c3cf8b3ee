package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"pwanotify/internal/authz"
	"pwanotify/internal/handlers"
	"pwanotify/internal/middleware"

	_ "pwanotify/docs"
)

type Handlers struct {
	Auth          *handlers.AuthHandler
	Verify        *handlers.VerifyHandler
	Users         *handlers.UserHandler
	Subscriptions *handlers.SubscriptionHandler
	Notifications *handlers.NotificationHandler
	Dashboard     *handlers.DashboardHandler
}

func SetupRoutes(r *gin.Engine, guard *middleware.Guard, h Handlers, gatherer prometheus.Gatherer) *gin.Engine {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api")
	authed := guard.Authenticate()
	admin := guard.RequireRoles(authz.RoleAdmin)
	client := guard.RequireVerifiedClient()

	// ---- auth (public, кроме /me)
	auth := api.Group("/auth")
	{
		auth.POST("/register", h.Auth.Register)
		auth.POST("/login", h.Auth.Login)
		auth.POST("/verify-otp", h.Verify.VerifyOTP)
		auth.POST("/resend-otp", h.Verify.ResendOTP)
		auth.GET("/me", authed, h.Auth.Me)
	}

	// USERS (admin)
	users := api.Group("/users", authed, admin)
	{
		users.GET("", h.Users.List)
		users.POST("", h.Users.Create)
		users.GET("/:id", h.Users.Get)
		users.PUT("/:id", h.Users.Update)
		users.DELETE("/:id", h.Users.Delete)
	}

	// SUBSCRIPTIONS
	subs := api.Group("/subscriptions")
	{
		subs.GET("/vapid-public-key", h.Subscriptions.VAPIDPublicKey)
		subs.GET("/admin/all", authed, admin, h.Subscriptions.ListAll)
		subs.POST("", authed, client, h.Subscriptions.Subscribe)
		subs.GET("", authed, client, h.Subscriptions.List)
		subs.DELETE("/:id", authed, client, h.Subscriptions.Delete)
	}

	// NOTIFICATIONS
	notes := api.Group("/notifications", authed)
	{
		notes.GET("/admin/all", admin, h.Notifications.ListAll)
		notes.POST("/admin/send", admin, h.Notifications.AdminSend)
		notes.GET("/stream", client, h.Notifications.Stream)
		notes.GET("", client, h.Notifications.List)
		notes.POST("", client, h.Notifications.Create)
		// владелец или админ, проверка в сервисе
		notes.GET("/:id", h.Notifications.Get)
		notes.DELETE("/:id", client, h.Notifications.Delete)
	}

	api.GET("/admin/dashboard", authed, admin, h.Dashboard.Stats)

	return r
}
