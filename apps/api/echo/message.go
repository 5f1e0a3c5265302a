package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/klunity/klunity/core/message"
)

type messageApi struct {
	validate *validator.Validate
	svc      *message.Service
}

func registerMessageAPI(g *echo.Group, jwt, active echo.MiddlewareFunc, deps *Deps) {
	api := messageApi{validate: deps.Validate, svc: deps.MessageSvc}

	mg := g.Group("/messages", jwt, active)
	mg.GET("", api.conversations)
	mg.GET("/unread", api.unread)
	mg.GET("/:userId", api.conversation)
	mg.POST("/:userId", api.send)
}

func (api *messageApi) conversations(ctx echo.Context) error {
	convs, err := api.svc.Conversations(ctx.Request().Context(), ctxUser(ctx))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, convs)
}

func (api *messageApi) unread(ctx echo.Context) error {
	n, err := api.svc.UnreadCount(ctx.Request().Context(), ctxUser(ctx).ID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, echo.Map{"count": n})
}

func (api *messageApi) conversation(ctx echo.Context) error {
	msgs, err := api.svc.Conversation(ctx.Request().Context(), ctxUser(ctx), ctx.Param("userId"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *messageApi) send(ctx echo.Context) error {
	data := new(message.NewMessage)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	msg, err := api.svc.Send(ctx.Request().Context(), ctxUser(ctx), ctx.Param("userId"), *data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, msg)
}
