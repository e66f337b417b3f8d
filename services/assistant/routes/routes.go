// Copyright (C) 2025 CK Auto AI (dev@ckauto.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the assistant HTTP surface.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ckauto-ai/shopbrain/pkg/extensions"
	"github.com/ckauto-ai/shopbrain/services/assistant/handlers"
	"github.com/ckauto-ai/shopbrain/services/assistant/middleware"
)

// SetupRoutes mounts the assistant endpoints on the router.
//
// /health and /metrics are unauthenticated; everything under /v1 passes
// through the auth middleware, and the chat endpoint additionally through
// the guest allowance brake.
func SetupRoutes(router *gin.Engine, chatHandler *handlers.ChatHandler,
	authProvider extensions.AuthProvider, guestAllowance *middleware.GuestAllowance) {

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(authProvider))
	{
		chat := v1.Group("/chat")
		{
			chat.POST("/stream", middleware.GuestLimitMiddleware(guestAllowance), chatHandler.HandleChatStream)
			chat.GET("/:conversationId/stream/:streamId", chatHandler.HandleResumeStream)
		}

		conversations := v1.Group("/conversations")
		{
			conversations.GET("/:conversationId/history", chatHandler.HandleGetHistory)
			conversations.DELETE("/:conversationId", chatHandler.HandleDeleteConversation)
		}
	}
}
