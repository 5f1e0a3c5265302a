package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/klunity/klunity/core"
	"github.com/klunity/klunity/core/social"
	"github.com/klunity/klunity/core/user"
	mediastore "github.com/klunity/klunity/storage/media"
)

type (
	LoginRequest struct {
		Email    string `json:"email" validate:"required"` // email or username
		Password string `json:"password" validate:"required"`
	}

	EmailRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	TokenResponse struct {
		Token string     `json:"token"`
		User  *user.User `json:"user,omitempty"`
	}

	SuccessResponse struct {
		Success bool   `json:"success"`
		Message string `json:"message,omitempty"`
	}

	ProfileResponse struct {
		user.User
		Followers    int                  `json:"followers_count"`
		Following    int                  `json:"following_count"`
		Relationship *social.Relationship `json:"relationship,omitempty"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (er *EmailRequest) Validate(validate *validator.Validate) error {
	er.Email = core.CleanString(er.Email, true /* lower */)
	return validate.Struct(er)
}

type userApi struct {
	conf      *core.Config
	validate  *validator.Validate
	svc       *user.Service
	socialSvc *social.Service
	media     *mediastore.Store
}

func newUserApi(deps *Deps) *userApi {
	return &userApi{
		conf:      deps.Conf,
		validate:  deps.Validate,
		svc:       deps.UserSvc,
		socialSvc: deps.SocialSvc,
		media:     deps.Media,
	}
}

func registerAuthAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps *Deps) {
	api := newUserApi(deps)

	ag := g.Group("/auth")
	ag.POST("/register", api.register)
	ag.POST("/verify-email", api.verifyEmail)
	ag.POST("/resend-otp", api.resendOTP)
	ag.POST("/login", api.login)
	ag.POST("/forgot-password", api.forgotPassword)
	ag.POST("/reset-password", api.resetPassword)
	ag.POST("/token-refresh", api.refreshToken, jwt)
}

func registerUserAPI(g *echo.Group, jwt, optionalJWT, active echo.MiddlewareFunc, deps *Deps) {
	api := newUserApi(deps)

	ug := g.Group("/users")
	ug.GET("/profile", api.profile, jwt, active)
	ug.PUT("/profile", api.updateProfile, jwt, active)
	ug.POST("/avatar", api.uploadAvatar, jwt, active)
	ug.GET("/search/query", api.search, jwt, active)
	ug.GET("/id/:id", api.retrieveByID, optionalJWT)
	ug.GET("/:username", api.retrieveByUsername, optionalJWT)
}

// Handlers

func (api *userApi) register(ctx echo.Context) error {
	data := new(user.NewUser)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(ctx.Request().Context(), api.validate, api.svc); err != nil {
		return err
	}

	usr, err := api.svc.Register(ctx.Request().Context(), *data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, echo.Map{
		"message": "registration successful, check your email for the verification code",
		"email":   usr.Email,
	})
}

func (api *userApi) verifyEmail(ctx echo.Context) error {
	data := new(user.VerifyEmail)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.VerifyEmail(ctx.Request().Context(), *data)
	if err != nil {
		return err
	}
	return api.tokenResponse(ctx, usr)
}

func (api *userApi) resendOTP(ctx echo.Context) error {
	data := new(EmailRequest)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResendOTP(ctx.Request().Context(), data.Email); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "verification code sent"})
}

func (api *userApi) login(ctx echo.Context) error {
	data := new(LoginRequest)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.Authenticate(ctx.Request().Context(), data.Email, data.Password, ctx.RealIP())
	if err != nil {
		return err
	}
	return api.tokenResponse(ctx, usr)
}

// forgotPassword answers the same way whether or not the account exists.
func (api *userApi) forgotPassword(ctx echo.Context) error {
	data := new(EmailRequest)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email)
	if err != nil && !core.IsNotFound(err) && errors.Cause(err) != core.ErrThrottled {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: true,
		Message: "if an account exists for this email, a reset code has been sent",
	})
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	data := new(user.ResetUserPassword)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), *data); err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "password updated"})
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := refreshToken(ctx, api.svc, api.conf)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, TokenResponse{Token: token})
}

func (api *userApi) profile(ctx echo.Context) error {
	return api.profileResponse(ctx, ctxUser(ctx), "")
}

func (api *userApi) updateProfile(ctx echo.Context) error {
	data := new(user.UpdateProfile)
	if err := ctx.Bind(data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.UpdateProfile(ctx.Request().Context(), ctxUser(ctx), *data)
	if err != nil {
		return err
	}
	ctx.Set(contextUserKey, usr)
	return api.profileResponse(ctx, usr, "")
}

func (api *userApi) uploadAvatar(ctx echo.Context) error {
	fh, err := ctx.FormFile("avatar")
	if err != nil {
		return core.NewValidationError(nil, core.FieldError{Field: "avatar", Error: "an image file is required"})
	}
	file, err := fh.Open()
	if err != nil {
		return errors.Wrap(err, "opening avatar upload")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer file.Close()

	url, err := api.media.SaveImage(file, "avatars", "avatar")
	if err != nil {
		return err
	}

	usr := ctxUser(ctx)
	prev := usr.Avatar
	if usr, err = api.svc.SetAvatar(ctx.Request().Context(), usr, url); err != nil {
		_ = api.media.Delete(url)
		return err
	}
	_ = api.media.Delete(prev)
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) search(ctx echo.Context) error {
	sums, err := api.svc.Search(ctx.Request().Context(), ctx.QueryParam("q"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sums)
}

func (api *userApi) retrieveByID(ctx echo.Context) error {
	usr, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return api.publicProfile(ctx, usr)
}

func (api *userApi) retrieveByUsername(ctx echo.Context) error {
	usr, err := api.svc.GetByUsername(ctx.Request().Context(), ctx.Param("username"))
	if err != nil {
		return err
	}
	return api.publicProfile(ctx, usr)
}

// Helpers

func (api *userApi) publicProfile(ctx echo.Context, usr user.User) error {
	if !usr.IsEmailVerified {
		return user.ErrNotFound
	}
	viewer, ok, err := getOptionalContextUser(ctx, api.svc)
	if err != nil {
		return err
	}
	var viewerID string
	if ok {
		viewerID = viewer.ID
	}
	return api.profileResponse(ctx, usr, viewerID)
}

func (api *userApi) profileResponse(ctx echo.Context, usr user.User, viewerID string) error {
	rctx := ctx.Request().Context()
	counts, err := api.socialSvc.Counts(rctx, usr.ID)
	if err != nil {
		return err
	}
	resp := ProfileResponse{User: usr, Followers: counts.Followers, Following: counts.Following}
	if viewerID != "" && viewerID != usr.ID {
		rel, err := api.socialSvc.Relationship(rctx, viewerID, usr.ID)
		if err != nil {
			return err
		}
		resp.Relationship = &rel
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *userApi) tokenResponse(ctx echo.Context, usr user.User) error {
	token, err := GenerateToken(GetUserClaims(usr, api.conf), api.conf)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, TokenResponse{Token: token, User: &usr})
}
