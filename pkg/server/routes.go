package server

import (
	"github.com/labstack/echo/v4"
)

func (s *Server) registerRoutes() {
	s.echo.GET("/", s.handleRoot)
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/status", s.handleStatus)
	s.echo.GET("/info", s.handleInfo)
	if s.metricsHTTP != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metricsHTTP))
	}

	s.echo.POST("/receive-chat-id", s.handleReceiveChatID, s.registerLimiter())
	s.echo.POST("/capabilities/sentiment", s.handleSentiment)
}
