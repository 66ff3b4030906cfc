package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"fleetmaster/internal/accounts"
	"fleetmaster/internal/installer"
	"fleetmaster/internal/models"
	"fleetmaster/internal/orchestrator/service"
	"fleetmaster/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// API provides HTTP handlers for the orchestrator.
type API struct {
	registry    *service.Registry
	queue       *service.TaskQueue
	coordinator *service.Coordinator
	waits       *service.WaitRegistry
	accounts    *accounts.Store
	advertise   string
	logger      *logger.Logger
	upgrader    websocket.Upgrader
}

// NewAPI creates a new API handler. advertise is the externally reachable
// orchestrator URL baked into generated installer scripts.
func NewAPI(registry *service.Registry, queue *service.TaskQueue, coordinator *service.Coordinator, waits *service.WaitRegistry, accountStore *accounts.Store, advertise string, logger *logger.Logger) *API {
	return &API{
		registry:    registry,
		queue:       queue,
		coordinator: coordinator,
		waits:       waits,
		accounts:    accountStore,
		advertise:   advertise,
		logger:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // In production, implement a proper origin check.
			},
		},
	}
}

// writeError maps domain errors onto HTTP status codes.
func (a *API) writeError(c *gin.Context, err error) {
	switch {
	case models.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case models.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		// The service layer already logged the detailed error
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func pageRequestFromQuery(c *gin.Context, filterKeys ...string) models.PageRequest {
	start, _ := strconv.Atoi(c.DefaultQuery("start", "0"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	filters := make(map[string]string)
	filters["accountId"] = c.Param("accountId")
	for _, k := range filterKeys {
		if v := c.Query(k); v != "" {
			filters[k] = v
		}
	}
	return models.PageRequest{Start: start, PageSize: pageSize, Filters: filters}
}

// --- Delegate handlers ---

// RegisterDelegateHandler handles idempotent delegate registration. A
// delegate re-registering with the same (account, hostName, ip) signature
// gets its existing record back instead of a duplicate.
func (a *API) RegisterDelegateHandler(c *gin.Context) {
	var d models.Delegate
	if err := c.ShouldBindJSON(&d); err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Invalid register payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}
	d.AccountID = c.Param("accountId")

	registered, err := a.registry.Register(c.Request.Context(), &d)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, registered)
}

// AddDelegateHandler creates a delegate record directly.
func (a *API) AddDelegateHandler(c *gin.Context) {
	var d models.Delegate
	if err := c.ShouldBindJSON(&d); err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Invalid delegate payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}
	d.AccountID = c.Param("accountId")

	created, err := a.registry.Add(c.Request.Context(), &d)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// ListDelegatesHandler returns a page of delegates for the account.
func (a *API) ListDelegatesHandler(c *gin.Context) {
	req := pageRequestFromQuery(c, "status", "hostName", "ip")
	page, err := a.registry.List(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetDelegateHandler returns a single delegate by id.
func (a *API) GetDelegateHandler(c *gin.Context) {
	d, err := a.registry.Get(c.Request.Context(), c.Param("accountId"), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// UpdateDelegateHandler updates a delegate record.
func (a *API) UpdateDelegateHandler(c *gin.Context) {
	var d models.Delegate
	if err := c.ShouldBindJSON(&d); err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Invalid delegate payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}
	d.AccountID = c.Param("accountId")
	d.ID = c.Param("id")

	updated, err := a.registry.Update(c.Request.Context(), &d)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteDelegateHandler removes a delegate. Deleting an unknown delegate is
// a no-op and still answers 204.
func (a *API) DeleteDelegateHandler(c *gin.Context) {
	if err := a.registry.Delete(c.Request.Context(), c.Param("accountId"), c.Param("id")); err != nil {
		a.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// AcquireTasksHandler is the delegate poll endpoint. It doubles as the
// heartbeat: every poll advances the delegate's heartbeat before the pending
// tasks are returned.
func (a *API) AcquireTasksHandler(c *gin.Context) {
	tasks, err := a.coordinator.Acquire(c.Request.Context(), c.Param("accountId"), c.Param("id"))
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": tasks})
}

// InstallerHandler renders the delegate bootstrap script for the account.
func (a *API) InstallerHandler(c *gin.Context) {
	if a.accounts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "account store is not configured"})
		return
	}

	accountID := c.Param("accountId")
	key, err := a.accounts.GetAccountKey(accountID)
	if err != nil {
		a.writeError(c, err)
		return
	}

	script, err := installer.RenderScript(installer.ScriptParams{
		OrchestratorURL: a.advertise,
		AccountID:       accountID,
		AccountKey:      key,
	})
	if err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to render installer script")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}
	c.Data(http.StatusOK, "text/x-shellscript; charset=utf-8", []byte(script))
}

// --- Task handlers ---

// SubmitTaskHandler enqueues a task without waiting for its result.
func (a *API) SubmitTaskHandler(c *gin.Context) {
	var task models.DelegateTask
	if err := c.ShouldBindJSON(&task); err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Invalid task payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}
	task.AccountID = c.Param("accountId")

	created, err := a.queue.SendTaskWaitNotify(c.Request.Context(), &task)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"taskId": created.TaskID, "waitId": created.WaitID})
}

// ExecuteTaskHandler enqueues a task and blocks until its response arrives
// or the timeout expires. The wait binding is made before the task becomes
// visible to delegates so a fast response cannot slip past the waiter.
func (a *API) ExecuteTaskHandler(c *gin.Context) {
	var task models.DelegateTask
	if err := c.ShouldBindJSON(&task); err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Warn("Invalid task payload")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}
	task.AccountID = c.Param("accountId")
	if task.WaitID == "" {
		task.WaitID = uuid.New().String()
	}

	timeoutSeconds, _ := strconv.Atoi(c.DefaultQuery("timeoutSeconds", "30"))
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}

	// Bind before the task becomes visible to delegates so a fast response
	// cannot slip past the waiter.
	ch, err := a.waits.Bind(task.WaitID)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	created, err := a.queue.SendTaskWaitNotify(c.Request.Context(), &task)
	if err != nil {
		a.waits.Unbind(task.WaitID)
		a.writeError(c, err)
		return
	}

	select {
	case payload := <-ch:
		c.JSON(http.StatusOK, gin.H{"taskId": created.TaskID, "response": json.RawMessage(payload)})
	case <-time.After(time.Duration(timeoutSeconds) * time.Second):
		a.waits.Unbind(created.WaitID)
		c.JSON(http.StatusGatewayTimeout, gin.H{"taskId": created.TaskID, "error": "timed out waiting for a delegate response"})
	case <-c.Request.Context().Done():
		a.waits.Unbind(created.WaitID)
	}
}

// ListTasksHandler returns a page of queued tasks for the account.
func (a *API) ListTasksHandler(c *gin.Context) {
	req := pageRequestFromQuery(c, "appId", "taskType", "waitId")
	page, err := a.queue.ListTasks(c.Request.Context(), req)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// SubmitResponseHandler accepts a delegate's task response. Duplicate
// submissions for the same task are absorbed and still answer 200.
func (a *API) SubmitResponseHandler(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	resp := &models.DelegateTaskResponse{
		AccountID: c.Param("accountId"),
		TaskID:    c.Param("id"),
		Response:  body,
	}
	if err := a.coordinator.SubmitResponse(c.Request.Context(), resp); err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"taskId": resp.TaskID})
}

// AwaitHandler long-polls for the response bound to a wait id.
func (a *API) AwaitHandler(c *gin.Context) {
	timeoutSeconds, _ := strconv.Atoi(c.DefaultQuery("timeoutSeconds", "30"))
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Duration(timeoutSeconds)*time.Second)
	defer cancel()

	payload, err := a.waits.Await(ctx, c.Param("waitId"))
	if err != nil {
		if ctx.Err() != nil {
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "timed out waiting for a delegate response"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"response": json.RawMessage(payload)})
}

// WebSocketHandler upgrades the delegate's notification channel. Queued-task
// pings for the delegate's account are broadcast over this connection.
func (a *API) WebSocketHandler(c *gin.Context) {
	accountID := c.Param("accountId")
	delegateID := c.Param("id")

	conn, err := a.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		a.logger.WithError(models.ErrorInfo{Message: err.Error()}).Error("Failed to upgrade WebSocket connection")
		return
	}

	a.coordinator.AddConnection(accountID, delegateID, conn)

	conn.SetCloseHandler(func(code int, text string) error {
		a.coordinator.RemoveConnection(accountID, delegateID)
		return nil
	})

	go func() {
		defer a.coordinator.RemoveConnection(accountID, delegateID)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				break
			}
		}
	}()
}
