package echoapi

import (
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/message"
	"github.com/klunity/klunity/core/notification"
	"github.com/klunity/klunity/core/user"
	"github.com/klunity/klunity/services/metrics"
	"github.com/klunity/klunity/services/realtime"
)

type realtimeApi struct {
	conf       *core.Config
	userSvc    *user.Service
	notifSvc   *notification.Service
	messageSvc *message.Service
	hub        *realtime.Hub
	upgrader   *websocket.Upgrader
	metrics    *metrics.Metrics
}

func registerRealtimeAPI(g *echo.Group, deps *Deps) {
	api := realtimeApi{
		conf:       deps.Conf,
		userSvc:    deps.UserSvc,
		notifSvc:   deps.NotifSvc,
		messageSvc: deps.MessageSvc,
		hub:        deps.Hub,
		upgrader:   deps.Upgrader,
		metrics:    deps.Metrics,
	}
	g.GET("/ws", api.connect)
}

// connect upgrades a request authenticated by its "token" query param and greets the client
// with its unread counters.
func (api *realtimeApi) connect(ctx echo.Context) error {
	token := ctx.QueryParam("token")
	if token == "" {
		return errUnauthorized
	}
	claims, err := parseToken(token, api.conf)
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.userSvc, *claims)
	if err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	var unread notification.Unread
	if unread.Notifications, err = api.notifSvc.UnreadCount(rctx, usr.ID); err != nil {
		return err
	}
	if unread.Messages, err = api.messageSvc.UnreadCount(rctx, usr.ID); err != nil {
		return err
	}

	conn, err := api.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return nil // the upgrader already answered the client
	}
	if api.metrics != nil {
		api.metrics.EventSent(core.EventUnread)
	}
	api.hub.Serve(conn, usr.ID, core.Event{Type: core.EventUnread, Data: unread})
	return nil
}
