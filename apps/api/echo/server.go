package echoapi

import (
	"context"
	"net/http"
	"os"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/contact"
	"github.com/klunity/klunity/core/message"
	"github.com/klunity/klunity/core/moderation"
	"github.com/klunity/klunity/core/newsletter"
	"github.com/klunity/klunity/core/notification"
	"github.com/klunity/klunity/core/social"
	"github.com/klunity/klunity/core/story"
	"github.com/klunity/klunity/core/user"
	"github.com/klunity/klunity/services/metrics"
	"github.com/klunity/klunity/services/realtime"
	mediastore "github.com/klunity/klunity/storage/media"
)

type (
	Deps struct {
		Conf          *core.Config
		Logger        core.Logger
		Validate      *validator.Validate
		Translator    ut.Translator
		UserSvc       *user.Service
		SocialSvc     *social.Service
		NotifSvc      *notification.Service
		MessageSvc    *message.Service
		StorySvc      *story.Service
		ModerationSvc *moderation.Service
		ContactSvc    *contact.Service
		NewsletterSvc *newsletter.Service
		Media         *mediastore.Store
		Hub           *realtime.Hub
		Upgrader      *websocket.Upgrader
		Metrics       *metrics.Metrics
	}

	Server struct {
		address  string
		deps     *Deps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(address string, shutdown chan os.Signal, deps *Deps) *Server {
	s := &Server{
		address:  address,
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: shutdown,
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Debug = conf.Debug
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)

	s.app.Pre(middleware.RemoveTrailingSlash())
	if s.deps.Metrics != nil {
		s.app.Use(s.deps.Metrics.Middleware())
	}
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     conf.Server.CORSOrigins,
		AllowCredentials: true,
		AllowHeaders:     []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	s.app.Use(middleware.BodyLimit("10M"))

	if s.deps.Media != nil {
		s.app.Static(conf.MediaBaseURL, s.deps.Media.Dir())
	}

	s.app.GET("/", home)

	g := s.app.Group("/api")
	g.GET("", home)

	jwt := middleware.JWTWithConfig(newJWTConfig(conf))
	optionalJWT := middleware.JWTWithConfig(newOptionalJWTConfig(conf))
	active := activeUserMiddleware(s.deps.UserSvc)

	registerAuthAPI(g, jwt, s.deps)
	registerUserAPI(g, jwt, optionalJWT, active, s.deps)
	registerSocialAPI(g, jwt, active, s.deps)
	registerMessageAPI(g, jwt, active, s.deps)
	registerNotificationAPI(g, jwt, active, s.deps)
	registerStoryAPI(g, jwt, active, s.deps)
	registerContactAPI(g, jwt, s.deps)
	registerNewsletterAPI(g, s.deps)
	registerAdminAPI(g, jwt, active, s.deps)
	registerRealtimeAPI(g, s.deps)
}

// Start blocks until the server stops. Failures are reported on Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

// Shutdown drains the HTTP server then disconnects the websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.Shutdown(ctx)
	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
	return err
}

func (s *Server) Close() error {
	if s.deps.Hub != nil {
		s.deps.Hub.Close()
	}
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Welcome to KL Unity API!"})
}
