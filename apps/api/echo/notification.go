package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/klunity/klunity/core/notification"
)

type notificationApi struct {
	svc *notification.Service
}

func registerNotificationAPI(g *echo.Group, jwt, active echo.MiddlewareFunc, deps *Deps) {
	api := notificationApi{svc: deps.NotifSvc}

	ng := g.Group("/notifications", jwt, active)
	ng.GET("", api.list)
	ng.GET("/unread", api.unread)
	ng.PUT("/read-all", api.markAllRead)
	ng.PUT("/:id/read", api.markRead)
}

func (api *notificationApi) list(ctx echo.Context) error {
	ns, err := api.svc.List(ctx.Request().Context(), ctxUser(ctx).ID, intParam(ctx, "limit"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, ns)
}

func (api *notificationApi) unread(ctx echo.Context) error {
	n, err := api.svc.UnreadCount(ctx.Request().Context(), ctxUser(ctx).ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"count": n})
}

func (api *notificationApi) markAllRead(ctx echo.Context) error {
	n, err := api.svc.MarkAllRead(ctx.Request().Context(), ctxUser(ctx).ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"updated": n})
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	if err := api.svc.MarkRead(ctx.Request().Context(), ctxUser(ctx).ID, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true})
}
