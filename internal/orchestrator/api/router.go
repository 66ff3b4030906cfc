package api

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all orchestrator routes. Global middleware (rate
// limiting, circuit breaking) is applied by the caller before routes are
// registered.
func RegisterRoutes(router *gin.Engine, api *API) {
	v1 := router.Group("/api/v1")

	account := v1.Group("/accounts/:accountId")
	{
		delegates := account.Group("/delegates")
		{
			delegates.POST("", api.AddDelegateHandler)
			delegates.GET("", api.ListDelegatesHandler)
			delegates.POST("/register", api.RegisterDelegateHandler)
			delegates.GET("/installer", api.InstallerHandler)
			delegates.GET("/:id", api.GetDelegateHandler)
			delegates.PUT("/:id", api.UpdateDelegateHandler)
			delegates.DELETE("/:id", api.DeleteDelegateHandler)
			delegates.GET("/:id/tasks", api.AcquireTasksHandler)
			delegates.GET("/:id/ws", api.WebSocketHandler)
		}

		tasks := account.Group("/tasks")
		{
			tasks.POST("", api.SubmitTaskHandler)
			tasks.POST("/execute", api.ExecuteTaskHandler)
			tasks.GET("", api.ListTasksHandler)
			tasks.POST("/:id/response", api.SubmitResponseHandler)
		}

		account.GET("/waits/:waitId", api.AwaitHandler)
	}
}
