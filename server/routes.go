package server

func (s *Server) initRoutes() {
	// Handshake API routes
	s.RegisterRouteHandler("POST "+RouteAuthState, ChainMiddleware(s.IssueStateHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthPlatform, ChainMiddleware(s.CompletePlatformAuthHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("GET "+RouteAuthSession, ChainMiddleware(s.ResolveSessionHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST "+RouteAuthStateDelete, ChainMiddleware(s.DeleteStateHandler(), s.APIMiddleware()...))

	// Preflight for the browser-facing endpoints
	s.RegisterRouteHandler("OPTIONS /auth/", ChainMiddleware(s.PreflightHandler(), s.APIMiddleware()...))

	// Magic link verification (browser navigation, no CORS needed)
	s.RegisterRouteHandler("GET "+RouteAuthVerify, ChainMiddleware(s.VerifyMagicLinkHandler(), s.LoggingMiddleware, s.RecoverMiddleware))
}
