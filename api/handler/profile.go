package handler

import (
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/hustle/api/transport"
	"github.com/fastygo/hustle/domain"
	"github.com/fastygo/hustle/pkg/httpcontext"
	profileUC "github.com/fastygo/hustle/usecase/profile"
)

type ProfileHandler struct {
	baseHandler
	uc *profileUC.UseCase
}

func NewProfileHandler(uc *profileUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Get own profile
// @Tags profile
// @Success 200 {object} transport.Envelope
// @Router /api/v1/profile [get]
func (h *ProfileHandler) GetProfile(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	user, err := h.uc.GetProfile(stdCtx, userID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, user)
}

// @Summary Update own profile
// @Tags profile
// @Accept json
// @Produce json
// @Router /api/v1/profile [put]
func (h *ProfileHandler) UpdateProfile(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	var req transport.ProfileUpdateRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	updated, err := h.uc.UpdateProfile(stdCtx, userID, domain.ProfilePatch{
		Name:       req.Name,
		College:    req.College,
		Department: req.Department,
		Year:       req.Year,
		Phone:      req.Phone,
	})
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, updated)
}

// @Summary Public profile of a user
// @Tags profile
// @Router /api/v1/users/{id} [get]
func (h *ProfileHandler) GetUser(ctx *fasthttp.RequestCtx) {
	if h.userID(ctx) == "" {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	user, err := h.uc.GetProfile(stdCtx, pathParam(ctx, "id"))
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	public := *user
	public.Email = ""
	public.Phone = ""
	h.respondSuccess(ctx, http.StatusOK, public)
}

// @Summary Reviews received by a user
// @Tags profile
// @Router /api/v1/users/{id}/reviews [get]
func (h *ProfileHandler) ListReviews(ctx *fasthttp.RequestCtx) {
	if h.userID(ctx) == "" {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	limit := parseInt(string(ctx.QueryArgs().Peek("limit")), 0)
	reviews, err := h.uc.ListReviews(stdCtx, pathParam(ctx, "id"), limit)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, reviews)
}

// @Summary Rate a user
// @Tags profile
// @Router /api/v1/users/{id}/ratings [post]
func (h *ProfileHandler) SubmitRating(ctx *fasthttp.RequestCtx) {
	raterID := h.userID(ctx)
	if raterID == "" {
		return
	}

	var req transport.RatingRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	user, err := h.uc.SubmitRating(stdCtx, domain.Review{
		TaskID:  req.TaskID,
		RaterID: raterID,
		RateeID: pathParam(ctx, "id"),
		Stars:   req.Stars,
		Text:    req.Text,
	})
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	if user == nil {
		h.respondSuccess(ctx, http.StatusAccepted, nil)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, map[string]interface{}{
		"rating":        user.Rating,
		"total_ratings": user.TotalRatings,
	})
}
