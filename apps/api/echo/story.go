package echoapi

import (
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/story"
	mediastore "github.com/klunity/klunity/storage/media"
)

type storyApi struct {
	validate *validator.Validate
	svc      *story.Service
	media    *mediastore.Store
}

func registerStoryAPI(g *echo.Group, jwt, active echo.MiddlewareFunc, deps *Deps) {
	api := storyApi{validate: deps.Validate, svc: deps.StorySvc, media: deps.Media}

	sg := g.Group("/stories")
	sg.GET("", api.query)
	sg.GET("/:id", api.retrieve)

	ag := sg.Group("", jwt, active)
	ag.POST("", api.create)
	ag.PUT("/:id", api.update)
	ag.DELETE("/:id", api.destroy)
	ag.POST("/:id/react", api.react)
	ag.POST("/:id/comment", api.comment)
}

func (api *storyApi) query(ctx echo.Context) error {
	var page Pagination
	page.Bind(ctx)

	listing, err := api.svc.Query(ctx.Request().Context(), story.QueryFilter{
		AuthorID: ctx.QueryParam("author"),
		Category: ctx.QueryParam("category"),
		Search:   ctx.QueryParam("search"),
		Page:     core.Page{Number: page.Page, Limit: page.Limit},
	})
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, listing)
}

func (api *storyApi) retrieve(ctx echo.Context) error {
	s, err := api.svc.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

// create accepts a JSON body, or a multipart form with an optional "image" file.
func (api *storyApi) create(ctx echo.Context) error {
	data := new(story.NewStory)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	data.Tags = splitTags(data.Tags)
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	var image string
	if strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		if fh, err := ctx.FormFile("image"); err == nil {
			file, err := fh.Open()
			if err != nil {
				return errors.Wrap(err, "opening story image")
			}
			//goland:noinspection GoUnhandledErrorResult
			defer file.Close()

			if image, err = api.media.SaveImage(file, "stories", "image"); err != nil {
				return err
			}
		}
	}

	s, err := api.svc.Create(ctx.Request().Context(), ctxUser(ctx), *data, image)
	if err != nil {
		_ = api.media.Delete(image)
		return err
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *storyApi) update(ctx echo.Context) error {
	data := new(story.UpdateStory)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.Update(ctx.Request().Context(), ctxUser(ctx), ctx.Param("id"), *data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *storyApi) destroy(ctx echo.Context) error {
	rctx := ctx.Request().Context()
	s, err := api.svc.Get(rctx, ctx.Param("id"))
	if err != nil {
		return err
	}
	if err = api.svc.Delete(rctx, ctxUser(ctx), s.ID); err != nil {
		return err
	}
	_ = api.media.Delete(s.Image)
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "story deleted"})
}

func (api *storyApi) react(ctx echo.Context) error {
	r, err := api.svc.React(ctx.Request().Context(), ctxUser(ctx), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *storyApi) comment(ctx echo.Context) error {
	data := new(story.NewComment)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Comment(ctx.Request().Context(), ctxUser(ctx), ctx.Param("id"), *data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, c)
}

// splitTags accepts tags sent either as repeated form values or as one comma separated value.
func splitTags(tags []string) []string {
	var out []string
	for _, t := range tags {
		out = append(out, strings.Split(t, ",")...)
	}
	return out
}
