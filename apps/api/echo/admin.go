package echoapi

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/klunity/klunity/core/message"
	"github.com/klunity/klunity/core/moderation"
	"github.com/klunity/klunity/core/notification"
	"github.com/klunity/klunity/core/social"
	"github.com/klunity/klunity/core/story"
	"github.com/klunity/klunity/core/user"
)

type StatsResponse struct {
	Users          int `json:"users"`
	Stories        int `json:"stories"`
	ActiveToday    int `json:"active_today"`
	PendingFaculty int `json:"pending_faculty"`
}

type adminApi struct {
	validate      *validator.Validate
	userSvc       *user.Service
	storySvc      *story.Service
	socialSvc     *social.Service
	messageSvc    *message.Service
	notifSvc      *notification.Service
	moderationSvc *moderation.Service
}

func registerAdminAPI(g *echo.Group, jwt, active echo.MiddlewareFunc, deps *Deps) {
	api := adminApi{
		validate:      deps.Validate,
		userSvc:       deps.UserSvc,
		storySvc:      deps.StorySvc,
		socialSvc:     deps.SocialSvc,
		messageSvc:    deps.MessageSvc,
		notifSvc:      deps.NotifSvc,
		moderationSvc: deps.ModerationSvc,
	}

	ag := g.Group("/admin", jwt, adminMiddleware(), active)
	ag.GET("/stats", api.stats)

	ag.GET("/users", api.userQuery)
	ag.PUT("/users/:id", api.userUpdate)
	ag.POST("/users/:id/message", api.userMessage)
	ag.POST("/users/:id/follow", api.userFollow)

	ag.GET("/faculty/pending", api.facultyPending)
	ag.PUT("/faculty/verify/:id", api.facultyVerify)

	ag.GET("/blacklist", api.blacklistList)
	ag.POST("/blacklist", api.blacklistAdd)
	ag.DELETE("/blacklist/:id", api.blacklistRemove)
}

func (api *adminApi) stats(ctx echo.Context) error {
	rctx := ctx.Request().Context()
	var (
		stats StatsResponse
		err   error
	)
	if stats.Users, err = api.userSvc.Count(rctx, &user.QueryFilter{}); err != nil {
		return err
	}
	if stats.Stories, err = api.storySvc.Count(rctx); err != nil {
		return err
	}
	since := user.NowFunc().UTC().Add(-24 * time.Hour)
	if stats.ActiveToday, err = api.userSvc.Count(rctx, &user.QueryFilter{ActiveSince: since}); err != nil {
		return err
	}
	unverified := false
	pending := &user.QueryFilter{Roles: []string{user.RoleFaculty}, IsVerified: &unverified}
	if stats.PendingFaculty, err = api.userSvc.Count(rctx, pending); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *adminApi) userQuery(ctx echo.Context) error {
	var filter UserFilter
	filter.Bind(ctx)
	var ord Ordering
	ord.Bind(ctx)

	users, err := api.userSvc.Query(ctx.Request().Context(), &filter.QueryFilter, ord.Orderings)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *adminApi) userUpdate(ctx echo.Context) error {
	rctx := ctx.Request().Context()
	usr, err := api.userSvc.GetByID(rctx, ctx.Param("id"))
	if err != nil {
		return err
	}

	data := new(user.AdminUpdateUser)
	if err = ctx.Bind(data); err != nil {
		return err
	}
	if usr.ID == ctxUser(ctx).ID && data.IsSuspended != nil && *data.IsSuspended {
		return errSuspendSelf
	}
	if err = data.Validate(rctx, api.validate, usr, api.userSvc); err != nil {
		return err
	}

	if usr, err = api.userSvc.AdminUpdate(rctx, usr, *data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

// userMessage writes to any user, bypassing the follow gate, and leaves them an admin_message notification.
func (api *adminApi) userMessage(ctx echo.Context) error {
	data := new(message.NewMessage)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	rctx := ctx.Request().Context()
	admin := ctxUser(ctx)
	msg, err := api.messageSvc.Send(rctx, admin, ctx.Param("id"), *data)
	if err != nil {
		return err
	}
	_, err = api.notifSvc.Notify(rctx, notification.Notification{
		RecipientID: msg.RecipientID,
		SenderID:    admin.ID,
		Type:        notification.TypeAdminMessage,
		Message:     msg.Content,
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, msg)
}

func (api *adminApi) userFollow(ctx echo.Context) error {
	if err := api.socialSvc.ForceFollow(ctx.Request().Context(), ctxUser(ctx), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "now following"})
}

func (api *adminApi) facultyPending(ctx echo.Context) error {
	users, err := api.userSvc.PendingFaculty(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *adminApi) facultyVerify(ctx echo.Context) error {
	usr, err := api.userSvc.VerifyFaculty(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *adminApi) blacklistList(ctx echo.Context) error {
	words, err := api.moderationSvc.List(ctx.Request().Context())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, words)
}

func (api *adminApi) blacklistAdd(ctx echo.Context) error {
	data := new(moderation.NewWord)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	w, err := api.moderationSvc.Add(ctx.Request().Context(), ctxUser(ctx), *data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, w)
}

func (api *adminApi) blacklistRemove(ctx echo.Context) error {
	if err := api.moderationSvc.Remove(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}
