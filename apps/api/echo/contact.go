package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/klunity/klunity/core/contact"
	"github.com/klunity/klunity/core/newsletter"
)

type contactApi struct {
	validate *validator.Validate
	svc      *contact.Service
}

func registerContactAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := contactApi{validate: deps.Validate, svc: deps.ContactSvc}

	cg := g.Group("/contact")
	cg.POST("", api.create)

	ag := cg.Group("", jwt, adminMiddleware())
	ag.GET("", api.list)
	ag.PUT("/:id/status", api.updateStatus)
	ag.DELETE("/:id", api.destroy)
}

func (api *contactApi) create(ctx echo.Context) error {
	data := new(contact.NewMessage)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	msg, err := api.svc.Create(ctx.Request().Context(), *data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, msg)
}

func (api *contactApi) list(ctx echo.Context) error {
	msgs, err := api.svc.List(ctx.Request().Context(), ctx.QueryParam("status"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, msgs)
}

func (api *contactApi) updateStatus(ctx echo.Context) error {
	data := new(contact.UpdateStatus)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	msg, err := api.svc.UpdateStatus(ctx.Request().Context(), ctx.Param("id"), *data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, msg)
}

func (api *contactApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

type newsletterApi struct {
	validate *validator.Validate
	svc      *newsletter.Service
}

func registerNewsletterAPI(g *echo.Group, deps *Deps) {
	api := newsletterApi{validate: deps.Validate, svc: deps.NewsletterSvc}

	ng := g.Group("/newsletter")
	ng.POST("/subscribe", api.subscribe)
	ng.POST("/unsubscribe", api.unsubscribe)
}

func (api *newsletterApi) subscribe(ctx echo.Context) error {
	data := new(newsletter.Subscribe)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	sub, err := api.svc.Subscribe(ctx.Request().Context(), *data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, sub)
}

func (api *newsletterApi) unsubscribe(ctx echo.Context) error {
	data := new(newsletter.Subscribe)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.Unsubscribe(ctx.Request().Context(), *data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "unsubscribed"})
}
