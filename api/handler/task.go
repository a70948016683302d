package handler

import (
	"context"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/hustle/api/transport"
	"github.com/fastygo/hustle/domain"
	"github.com/fastygo/hustle/pkg/httpcontext"
	hustleUC "github.com/fastygo/hustle/usecase/hustle"
)

type taskAction func(h *TaskHandler, ctx context.Context, taskID, userID string) (*domain.Task, error)

type TaskHandler struct {
	baseHandler
	uc *hustleUC.UseCase
}

func NewTaskHandler(uc *hustleUC.UseCase, adapter *httpcontext.Adapter, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
	}
}

// @Summary Tasks of the caller's college
// @Tags tasks
// @Param q query string false "search term"
// @Param sort query string false "latest or price"
// @Router /api/v1/tasks [get]
func (h *TaskHandler) ListTasks(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	opts := hustleUC.ListOptions{
		Search: string(ctx.QueryArgs().Peek("q")),
		Sort:   string(ctx.QueryArgs().Peek("sort")),
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	views, err := h.uc.ListForViewer(stdCtx, userID, opts)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondJSON(ctx, http.StatusOK, transport.NewSuccess(views, transport.ListMeta{
		Count: len(views),
		Query: opts.Search,
		Sort:  opts.Sort,
	}))
}

// @Summary Tasks the caller posted or accepted
// @Tags tasks
// @Router /api/v1/me/tasks [get]
func (h *TaskHandler) MyTasks(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	owned, err := h.uc.QueryByIdentity(stdCtx, userID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, owned)
}

// @Summary Post a task
// @Tags tasks
// @Router /api/v1/tasks [post]
func (h *TaskHandler) CreateTask(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	var req transport.TaskRequest
	if !h.decode(ctx, &req) {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	created, err := h.uc.Create(stdCtx, userID, hustleUC.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Amount:      req.Amount,
		Deadline:    req.Deadline,
	})
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, h.view(created, userID))
}

// @Summary Get a task
// @Tags tasks
// @Router /api/v1/tasks/{id} [get]
func (h *TaskHandler) GetTask(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	task, err := h.uc.Get(stdCtx, pathParam(ctx, "id"))
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, h.view(task, userID))
}

// @Summary Accept a task
// @Tags tasks
// @Router /api/v1/tasks/{id}/accept [post]
func (h *TaskHandler) AcceptTask(ctx *fasthttp.RequestCtx) {
	h.act(ctx, func(h *TaskHandler, stdCtx context.Context, taskID, userID string) (*domain.Task, error) {
		return h.uc.Accept(stdCtx, taskID, userID)
	})
}

// @Summary Mark a task completed
// @Tags tasks
// @Router /api/v1/tasks/{id}/complete [post]
func (h *TaskHandler) CompleteTask(ctx *fasthttp.RequestCtx) {
	h.act(ctx, func(h *TaskHandler, stdCtx context.Context, taskID, userID string) (*domain.Task, error) {
		return h.uc.Complete(stdCtx, taskID, userID)
	})
}

// @Summary Confirm payment of a task
// @Tags tasks
// @Router /api/v1/tasks/{id}/payment [post]
func (h *TaskHandler) ConfirmPayment(ctx *fasthttp.RequestCtx) {
	var req transport.PaymentRequest
	if len(ctx.PostBody()) > 0 && !h.decode(ctx, &req) {
		return
	}
	h.act(ctx, func(h *TaskHandler, stdCtx context.Context, taskID, userID string) (*domain.Task, error) {
		return h.uc.ConfirmPayment(stdCtx, taskID, userID, req.WorkerID, req.Amount)
	})
}

// @Summary Poster contact details for the worker
// @Tags tasks
// @Router /api/v1/tasks/{id}/contact [get]
func (h *TaskHandler) Contact(ctx *fasthttp.RequestCtx) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	contact, err := h.uc.ContactFor(stdCtx, pathParam(ctx, "id"), userID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, contact)
}

func (h *TaskHandler) act(ctx *fasthttp.RequestCtx, fn taskAction) {
	userID := h.userID(ctx)
	if userID == "" {
		return
	}
	taskID := pathParam(ctx, "id")
	if taskID == "" {
		h.invalid(ctx, "missing task id")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	task, err := fn(h, stdCtx, taskID, userID)
	if err != nil {
		h.respondError(ctx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, h.view(task, userID))
}

func (h *TaskHandler) view(task *domain.Task, viewerID string) hustleUC.TaskView {
	return hustleUC.TaskView{Task: *task, Roles: task.RolesFor(viewerID)}
}
