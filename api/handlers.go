package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/wilhelmusolejr/to-do-list/domain"
)

const requestBodyMaxSize = 1 << 20

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Store, auth Authenticator, deduper Deduper, logger *log.Logger) {
	e.Use(GzipRequestMiddleware())
	e.POST("/api/tasks", createTask(store, auth, deduper))
	e.POST("/api/userTaskTitles", getTaskTitles(store, auth, logger))
	e.POST("/api/userTaskTitle", getTask(store, auth))
	e.POST("/api/userTasks", getTasks(store, auth))
	e.POST("/api/updateTask", updateTask(store, auth))
	e.POST("/api/updateTaskStatus", updateTaskStatus(store, auth))
	e.POST("/api/deleteEntireTask", deleteTask(store, auth))
	e.GET("/healthz", healthz())
}

type createTaskRequest struct {
	Category  domain.Category `json:"category"`
	TaskTitle string          `json:"task_title"`
	Tasks     []string        `json:"tasks"`
}

type taskIDRequest struct {
	TaskID string `json:"task_id"`
}

type updateTaskRequest struct {
	TaskID   string           `json:"task_id"`
	Title    *string          `json:"title,omitempty"`
	Category *domain.Category `json:"category,omitempty"`
	Tasks    *[]string        `json:"tasks,omitempty"`
}

type updateStatusRequest struct {
	TaskID    string `json:"task_id"`
	ItemID    string `json:"item_id"`
	Completed bool   `json:"completed"`
}

type taskResponse struct {
	Task domain.Task `json:"task"`
}

type taskTitlesResponse struct {
	TaskTitles []domain.TaskTitle `json:"task_titles"`
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func decodeBody(c echo.Context, out any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

// errorResponse maps store errors onto status codes. Validation failures
// are the caller's fault, ErrNotFound covers both absence and foreign
// ownership, everything else is a server fault.
func errorResponse(c echo.Context, err error) error {
	if domain.IsValidation(err) {
		return c.String(http.StatusBadRequest, err.Error())
	}
	if errors.Is(err, domain.ErrNotFound) {
		return c.String(http.StatusNotFound, "task not found")
	}
	c.Logger().Error(err)
	return c.String(http.StatusInternalServerError, "internal error")
}

func createTask(store Store, auth Authenticator, deduper Deduper) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		ownerID, err := auth.OwnerIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		key := c.Request().Header.Get("Idempotency-Key")
		if deduper != nil && key != "" {
			added, err := deduper.Add(ctx, ownerID, key)
			if err != nil {
				c.Logger().Error(err)
				return c.String(http.StatusInternalServerError, "internal error")
			}
			if !added {
				return c.String(http.StatusConflict, "duplicate request")
			}
		}

		task, err := store.CreateTask(ctx, ownerID, req.TaskTitle, req.Category, req.Tasks)
		if err != nil {
			if deduper != nil && key != "" {
				if remErr := deduper.Remove(ctx, ownerID, key); remErr != nil {
					c.Logger().Errorf("deduper remove failed: %v", remErr)
				}
			}
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusCreated, taskResponse{Task: task})
	}
}

func getTaskTitles(store Store, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics := newTitlesRequestMetrics(logger)
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		ownerID, authErr := auth.OwnerIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		fetchStart := time.Now()
		titles, fetchErr := store.ListTaskTitles(ctx, ownerID)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			err = errorResponse(c, fetchErr)
			return err
		}
		metrics.SetTitlesReturned(len(titles))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, taskTitlesResponse{TaskTitles: titles})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func getTask(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		ownerID, err := auth.OwnerIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req taskIDRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		task, err := store.GetTask(ctx, ownerID, req.TaskID)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, taskResponse{Task: task})
	}
}

func getTasks(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		ownerID, err := auth.OwnerIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		tasks, err := store.ListTasksFull(ctx, ownerID)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, tasksResponse{Tasks: tasks})
	}
}

func updateTask(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		ownerID, err := auth.OwnerIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req updateTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		upd := domain.TaskUpdate{Title: req.Title, Category: req.Category, Items: req.Tasks}
		task, err := store.UpdateTask(ctx, ownerID, req.TaskID, upd)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, taskResponse{Task: task})
	}
}

func updateTaskStatus(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		ownerID, err := auth.OwnerIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req updateStatusRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		task, err := store.UpdateSubItemStatus(ctx, ownerID, req.TaskID, req.ItemID, req.Completed)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(http.StatusOK, taskResponse{Task: task})
	}
}

func deleteTask(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		ownerID, err := auth.OwnerIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}
		var req taskIDRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if err := store.DeleteTask(ctx, ownerID, req.TaskID); err != nil {
			return errorResponse(c, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
}
