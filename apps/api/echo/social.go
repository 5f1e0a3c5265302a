package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/klunity/klunity/core/social"
	"github.com/klunity/klunity/core/user"
)

type socialApi struct {
	svc *social.Service
}

func registerSocialAPI(g *echo.Group, jwt, active echo.MiddlewareFunc, deps *Deps) {
	api := socialApi{svc: deps.SocialSvc}

	sg := g.Group("/social", jwt, active)
	sg.POST("/follow/:id", api.edge(api.svc.Follow, "follow request sent"))
	sg.POST("/withdraw/:id", api.edge(api.svc.Withdraw, "follow request withdrawn"))
	sg.POST("/accept/:id", api.edge(api.svc.Accept, "follow request accepted"))
	sg.POST("/reject/:id", api.edge(api.svc.Reject, "follow request rejected"))
	sg.POST("/unfollow/:id", api.edge(api.svc.Unfollow, "unfollowed"))
	sg.POST("/remove/:id", api.edge(api.svc.RemoveFollower, "follower removed"))
	sg.GET("/followers/:id", api.followers)
	sg.GET("/following/:id", api.following)
	sg.GET("/requests", api.requests)
	sg.GET("/status/:id", api.status)
}

type edgeFunc func(ctx context.Context, actor user.User, otherID string) error

// edge builds the handler of a state transition between the caller and the :id user.
func (api *socialApi) edge(fn edgeFunc, msg string) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if err := fn(ctx.Request().Context(), ctxUser(ctx), ctx.Param("id")); err != nil {
			return err
		}
		return ctx.JSON(http.StatusOK, SuccessResponse{Success: true, Message: msg})
	}
}

func (api *socialApi) followers(ctx echo.Context) error {
	sums, err := api.svc.Followers(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sums)
}

func (api *socialApi) following(ctx echo.Context) error {
	sums, err := api.svc.Following(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sums)
}

func (api *socialApi) requests(ctx echo.Context) error {
	reqs, err := api.svc.Requests(ctx.Request().Context(), ctxUser(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, reqs)
}

func (api *socialApi) status(ctx echo.Context) error {
	rel, err := api.svc.Relationship(ctx.Request().Context(), ctxUser(ctx).ID, ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, rel)
}
