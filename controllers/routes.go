package controllers

import (
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/atelier-api/middleware"
	"github.com/kendall-kelly/atelier-api/models"
)

// RegisterRoutes mounts the API under v1. auth validates the bearer token and sets the
// caller's subject; every route except uploads and profile creation also needs a profile.
func RegisterRoutes(v1 *gin.RouterGroup, auth gin.HandlerFunc) {
	v1.GET("/uploads/:filename", GetUploadedFile)

	authenticated := v1.Group("", auth)
	authenticated.POST("/users", CreateUser)

	api := authenticated.Group("", middleware.RequireUser())

	users := api.Group("/users")
	{
		users.GET("/me", GetMyProfile)
		users.PUT("/me", UpdateMyProfile)
	}

	designs := api.Group("/designs")
	{
		designs.POST("", middleware.RequireRole(models.RoleDesigner), CreateDesign)
		designs.GET("", ListDesigns)
		designs.POST("/files", middleware.RequireRole(models.RoleDesigner), UploadDesignFile)
		designs.GET("/designer/:designerId", ListDesignsByDesigner)
		designs.GET("/:id", GetDesign)
		designs.GET("/:id/quotes", ListQuotesForDesign("id"))
		designs.PATCH("/:id/status", UpdateDesignStatus)
		designs.DELETE("/:id", DeleteDesign)
	}

	quotes := api.Group("/quotes")
	{
		quotes.POST("", middleware.RequireRole(models.RoleSupplier), SubmitQuote)
		quotes.GET("/design/:designId", ListQuotesForDesign("designId"))
		quotes.GET("/supplier/:supplierId", ListQuotesForSupplier)
		quotes.GET("/:id", GetQuote)
		quotes.PATCH("/:id/status", UpdateQuoteStatus)
		quotes.POST("/:id/accept", AcceptQuote)
		quotes.POST("/:id/reject", RejectQuote)
		quotes.DELETE("/:id", DeleteQuote)
	}

	orders := api.Group("/orders")
	{
		orders.POST("", CreateOrder)
		orders.GET("/user", ListMyOrders)
		orders.GET("/:id", GetOrder)
		orders.PUT("/:id/status", UpdateOrderStatus)
		orders.PUT("/:id/payment-status", UpdateOrderPaymentStatus)
	}

	payments := api.Group("/payments")
	{
		payments.POST("/calculate-fee", CalculateFee)
		payments.POST("/process", ProcessPayment)
		payments.GET("/user", ListMyPayments)
		payments.GET("/:id", GetPayment)
		payments.GET("/:id/status", GetPaymentStatus)
		payments.POST("/:id/refund", RefundPayment)
		payments.GET("/:id/transactions", ListPaymentTransactions)
	}

	messages := api.Group("/messages")
	{
		messages.POST("", SendMessage)
		messages.GET("/conversation/:userId", GetConversation)
		messages.GET("/user", GetMyMessages)
		messages.GET("/unread/count", GetUnreadCount)
		messages.PUT("/:id/read", MarkMessageAsRead)
	}

	api.POST("/email/send", SendEmail)
}
