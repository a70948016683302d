package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/hustle/api/handler"
)

type Handlers struct {
	Auth    *apiHandler.AuthHandler
	Profile *apiHandler.ProfileHandler
	Task    *apiHandler.TaskHandler
	Stream  *apiHandler.StreamHandler
	Catalog *apiHandler.CatalogHandler
	Health  *apiHandler.HealthHandler
}

func New(handlers Handlers, authMiddleware func(fasthttp.RequestHandler) fasthttp.RequestHandler) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)
	r.GET("/api/v1/colleges", handlers.Catalog.Colleges)

	// Auth routes
	r.POST("/api/v1/auth/signup", handlers.Auth.SignUp)
	r.POST("/api/v1/auth/signin", handlers.Auth.SignIn)
	r.POST("/api/v1/auth/refresh", handlers.Auth.Refresh)
	r.GET("/api/v1/auth/federated/url", handlers.Auth.FederatedURL)
	r.POST("/api/v1/auth/federated/callback", handlers.Auth.FederatedCallback)
	r.POST("/api/v1/auth/federated/complete", authMiddleware(handlers.Auth.CompleteFederated))
	r.POST("/api/v1/auth/signout", authMiddleware(handlers.Auth.SignOut))

	// Protected routes
	r.GET("/api/v1/profile", authMiddleware(handlers.Profile.GetProfile))
	r.PUT("/api/v1/profile", authMiddleware(handlers.Profile.UpdateProfile))
	r.GET("/api/v1/users/{id}", authMiddleware(handlers.Profile.GetUser))
	r.GET("/api/v1/users/{id}/reviews", authMiddleware(handlers.Profile.ListReviews))
	r.POST("/api/v1/users/{id}/ratings", authMiddleware(handlers.Profile.SubmitRating))

	r.GET("/api/v1/tasks", authMiddleware(handlers.Task.ListTasks))
	r.POST("/api/v1/tasks", authMiddleware(handlers.Task.CreateTask))
	r.GET("/api/v1/me/tasks", authMiddleware(handlers.Task.MyTasks))
	r.GET("/api/v1/tasks/{id}", authMiddleware(handlers.Task.GetTask))
	r.POST("/api/v1/tasks/{id}/accept", authMiddleware(handlers.Task.AcceptTask))
	r.POST("/api/v1/tasks/{id}/complete", authMiddleware(handlers.Task.CompleteTask))
	r.POST("/api/v1/tasks/{id}/payment", authMiddleware(handlers.Task.ConfirmPayment))
	r.GET("/api/v1/tasks/{id}/contact", authMiddleware(handlers.Task.Contact))

	// Live feeds
	r.GET("/api/v1/feed/tasks", authMiddleware(handlers.Stream.Tasks))
	r.GET("/api/v1/feed/profile", authMiddleware(handlers.Stream.Profile))

	return r
}
