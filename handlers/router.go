package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"fitness-crm/middleware"
	"fitness-crm/models"
	"fitness-crm/monitoring"
	"fitness-crm/services"
)

// SessionAuthenticator is everything the auth endpoints and the session
// middleware need from the auth service.
type SessionAuthenticator interface {
	Authenticator
	middleware.Authenticator
}

type Deps struct {
	Repo         models.Repository
	Cache        Pinger
	Auth         SessionAuthenticator
	Cookie       middleware.SessionCookie
	LoginLimiter *middleware.IPRateLimiter
	Memberships  MembershipRegistrar
	Campaigns    CampaignDispatcher
	Previewer    Previewer
	Statistics   StatisticsProvider
	Search       CustomerSearcher
	Events       *services.EventPublisher
	Origins      []string
	Version      string
	Log          logrus.FieldLogger
}

func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestIDs(),
		middleware.Logger(d.Log),
		middleware.Sentry(),
		middleware.PrometheusMetrics(),
		middleware.ErrorHandler(d.Log),
		middleware.CORS(d.Origins),
		middleware.SecurityHeaders(),
	)

	health := NewHealthHandler(d.Repo, d.Cache, d.Version)
	authH := NewAuthHandler(d.Auth, d.Cookie)
	branches := NewBranchHandler(d.Repo)
	roles := NewRoleHandler(d.Repo)
	users := NewUserHandler(d.Repo, d.Auth)
	customers := NewCustomerHandler(d.Repo, d.Repo, d.Memberships, d.Search, d.Events, d.Log)
	products := NewProductHandler(d.Repo, d.Events)
	templates := NewTemplateHandler(d.Repo, d.Repo, d.Previewer)
	campaigns := NewCampaignHandler(d.Repo, d.Campaigns)
	stats := NewStatisticsHandler(d.Statistics)

	router.GET("/metrics", gin.WrapH(monitoring.Handler()))

	api := router.Group("/api/v1")
	api.GET("/health", health.Health)

	login := []gin.HandlerFunc{authH.Login}
	if d.LoginLimiter != nil {
		login = append([]gin.HandlerFunc{d.LoginLimiter.Handler()}, login...)
	}
	api.POST("/auth/login", login...)

	secured := api.Group("")
	secured.Use(middleware.Auth(d.Auth, d.Cookie))
	{
		secured.POST("/auth/logout", authH.Logout)
		secured.GET("/auth/session", authH.Session)
		secured.PUT("/me/password", authH.ChangeOwnPassword)

		c := secured.Group("/customers")
		c.GET("", can(models.AreaCustomers, models.ActionView), customers.ListCustomers)
		c.GET("/search", can(models.AreaCustomers, models.ActionView), customers.SearchCustomers)
		c.POST("", can(models.AreaCustomers, models.ActionCreate), customers.CreateCustomer)
		c.GET("/:id", can(models.AreaCustomers, models.ActionView), customers.GetCustomer)
		c.PUT("/:id", can(models.AreaCustomers, models.ActionEdit), customers.UpdateCustomer)
		c.DELETE("/:id", can(models.AreaCustomers, models.ActionDelete), customers.DeleteCustomer)
		c.GET("/:id/consultations", can(models.AreaCustomers, models.ActionView), customers.ListConsultations)
		c.POST("/:id/consultations", can(models.AreaCustomers, models.ActionCreate), customers.CreateConsultation)
		c.PUT("/:id/consultations/:consultation_id", can(models.AreaCustomers, models.ActionEdit), customers.UpdateConsultation)
		c.GET("/:id/memberships", can(models.AreaCustomers, models.ActionView), customers.ListMemberships)
		c.POST("/:id/memberships", can(models.AreaCustomers, models.ActionEdit), customers.CreateMembership)
		c.POST("/:id/memberships/:membership_id/cancel", can(models.AreaCustomers, models.ActionEdit), customers.CancelMembership)
		c.GET("/:id/membership-card", can(models.AreaCustomers, models.ActionView), customers.MembershipCard)

		p := secured.Group("/products")
		p.GET("", can(models.AreaProducts, models.ActionView), products.ListProducts)
		p.POST("", can(models.AreaProducts, models.ActionCreate), products.CreateProduct)
		p.GET("/:id", can(models.AreaProducts, models.ActionView), products.GetProduct)
		p.PUT("/:id", can(models.AreaProducts, models.ActionEdit), products.UpdateProduct)
		p.DELETE("/:id", can(models.AreaProducts, models.ActionDelete), products.DeleteProduct)

		t := secured.Group("/templates")
		t.GET("", can(models.AreaCampaigns, models.ActionView), templates.ListTemplates)
		t.POST("", can(models.AreaCampaigns, models.ActionCreate), templates.CreateTemplate)
		t.GET("/:id", can(models.AreaCampaigns, models.ActionView), templates.GetTemplate)
		t.PUT("/:id", can(models.AreaCampaigns, models.ActionEdit), templates.UpdateTemplate)
		t.DELETE("/:id", can(models.AreaCampaigns, models.ActionDelete), templates.DeleteTemplate)
		t.POST("/:id/preview", can(models.AreaCampaigns, models.ActionView), templates.PreviewTemplate)

		m := secured.Group("/campaigns")
		m.GET("", can(models.AreaCampaigns, models.ActionView), campaigns.ListCampaigns)
		m.POST("", can(models.AreaCampaigns, models.ActionCreate), campaigns.CreateCampaign)
		m.GET("/:id", can(models.AreaCampaigns, models.ActionView), campaigns.GetCampaign)
		m.PUT("/:id", can(models.AreaCampaigns, models.ActionEdit), campaigns.UpdateCampaign)
		m.DELETE("/:id", can(models.AreaCampaigns, models.ActionDelete), campaigns.DeleteCampaign)
		m.POST("/:id/send", can(models.AreaCampaigns, models.ActionSend), campaigns.SendCampaign)
		m.POST("/:id/cancel", can(models.AreaCampaigns, models.ActionEdit), campaigns.CancelCampaign)
		m.GET("/:id/messages", can(models.AreaCampaigns, models.ActionView), campaigns.ListMessages)

		s := secured.Group("/statistics", can(models.AreaStatistics, models.ActionView))
		s.GET("/dashboard", stats.Dashboard)
		s.GET("/customers", stats.Customers)
		s.GET("/revenue", stats.Revenue)

		secured.GET("/branches", can(models.AreaSettings, models.ActionView), branches.ListBranches)
		secured.POST("/branches", can(models.AreaSettings, models.ActionCreate), branches.CreateBranch)
		secured.GET("/branches/:id", can(models.AreaSettings, models.ActionView), branches.GetBranch)
		secured.PUT("/branches/:id", can(models.AreaSettings, models.ActionEdit), branches.UpdateBranch)
		secured.DELETE("/branches/:id", can(models.AreaSettings, models.ActionDelete), branches.DeleteBranch)

		secured.GET("/roles", can(models.AreaSettings, models.ActionView), roles.ListRoles)
		secured.POST("/roles", can(models.AreaSettings, models.ActionCreate), roles.CreateRole)
		secured.GET("/roles/:id", can(models.AreaSettings, models.ActionView), roles.GetRole)
		secured.PUT("/roles/:id", can(models.AreaSettings, models.ActionEdit), roles.UpdateRole)
		secured.DELETE("/roles/:id", can(models.AreaSettings, models.ActionDelete), roles.DeleteRole)

		secured.GET("/users", can(models.AreaSettings, models.ActionView), users.ListUsers)
		secured.POST("/users", can(models.AreaSettings, models.ActionCreate), users.CreateUser)
		secured.GET("/users/:id", can(models.AreaSettings, models.ActionView), users.GetUser)
		secured.PUT("/users/:id", can(models.AreaSettings, models.ActionEdit), users.UpdateUser)
		secured.DELETE("/users/:id", can(models.AreaSettings, models.ActionDelete), users.DeleteUser)
		secured.PUT("/users/:id/password", can(models.AreaSettings, models.ActionEdit), users.ResetPassword)
	}

	return router
}

func can(area, action string) gin.HandlerFunc {
	return middleware.RequirePermission(area, action)
}
