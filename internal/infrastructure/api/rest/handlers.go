package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vulcan-ci/vulcan/internal/orchestrator"
	"github.com/vulcan-ci/vulcan/internal/store"
)

// Handlers implements the Work Orchestrator's HTTP surface (spec §6):
// worker registration/heartbeat, pull-based work dispatch, result reporting,
// queue metrics, and the worker-busy probe used by the controller's scale-down
// preStop hook.
type Handlers struct {
	svc *orchestrator.Service
}

func NewHandlers(svc *orchestrator.Service) *Handlers {
	return &Handlers{svc: svc}
}

func (h *Handlers) Register(r gin.IRouter) {
	r.POST("/workers/register", h.registerWorker)
	r.POST("/workers/heartbeat", h.heartbeat)
	r.POST("/work/request", h.requestWork)
	r.POST("/work/result", h.reportResult)
	r.GET("/workers/:id/busy", h.workerBusy)
	r.GET("/queue/metrics", h.queueMetrics)
	r.GET("/health", h.health)
}

type registerWorkerRequest struct {
	WorkerID     string `json:"worker_id" binding:"required,uuid"`
	TenantID     string `json:"tenant_id" binding:"required"`
	MachineGroup string `json:"machine_group"`
}

func (h *Handlers) registerWorker(c *gin.Context) {
	var req registerWorkerRequest
	if bindJSON(c, &req) != nil {
		return
	}
	id, err := uuid.Parse(req.WorkerID)
	if err != nil {
		respondAPIError(c, ErrInvalidID)
		return
	}
	worker, err := h.svc.RegisterWorker(c.Request.Context(), id, req.TenantID, req.MachineGroup)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, worker)
}

type heartbeatRequest struct {
	WorkerID string `json:"worker_id" binding:"required,uuid"`
}

func (h *Handlers) heartbeat(c *gin.Context) {
	var req heartbeatRequest
	if bindJSON(c, &req) != nil {
		return
	}
	id, err := uuid.Parse(req.WorkerID)
	if err != nil {
		respondAPIError(c, ErrInvalidID)
		return
	}
	if err := h.svc.Heartbeat(c.Request.Context(), id); err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"ok": true})
}

type requestWorkRequest struct {
	WorkerID     string `json:"worker_id" binding:"required,uuid"`
	TenantID     string `json:"tenant_id" binding:"required"`
	MachineGroup string `json:"machine_group"`
}

// workRequestResponse is request_work's wire shape (spec §6): the script to
// run, its chain's provenance environment, the server's timeout budget, and
// the fragment identifier needed to report back.
type workRequestResponse struct {
	FragmentID  uuid.UUID         `json:"fragment_id"`
	Script      string            `json:"script"`
	Env         map[string]string `json:"env"`
	TimeoutSecs int               `json:"timeout_secs"`
}

func (h *Handlers) requestWork(c *gin.Context) {
	var req requestWorkRequest
	if bindJSON(c, &req) != nil {
		return
	}
	id, err := uuid.Parse(req.WorkerID)
	if err != nil {
		respondAPIError(c, ErrInvalidID)
		return
	}
	dispatch, err := h.svc.RequestWork(c.Request.Context(), req.TenantID, req.MachineGroup, id)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	if dispatch == nil {
		c.JSON(http.StatusNoContent, nil)
		return
	}
	respondJSON(c, http.StatusOK, workRequestResponse{
		FragmentID:  dispatch.Fragment.ID,
		Script:      dispatch.Fragment.Script,
		Env:         dispatch.Env,
		TimeoutSecs: dispatch.TimeoutSecs,
	})
}

type reportResultRequest struct {
	WorkerID   string `json:"worker_id" binding:"required,uuid"`
	FragmentID string `json:"fragment_id" binding:"required,uuid"`
	ExitCode   int    `json:"exit_code"`
	Error      string `json:"error"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
}

func (h *Handlers) reportResult(c *gin.Context) {
	var req reportResultRequest
	if bindJSON(c, &req) != nil {
		return
	}
	workerID, err := uuid.Parse(req.WorkerID)
	if err != nil {
		respondAPIError(c, ErrInvalidID)
		return
	}
	fragmentID, err := uuid.Parse(req.FragmentID)
	if err != nil {
		respondAPIError(c, ErrInvalidID)
		return
	}
	outcome := store.ReportOutcome{
		ExitCode: req.ExitCode,
		Error:    req.Error,
		Stdout:   req.Stdout,
		Stderr:   req.Stderr,
	}
	fragment, err := h.svc.ReportResult(c.Request.Context(), fragmentID, workerID, outcome)
	if err != nil {
		// A conflict here means "not assigned to this worker" — per spec §7
		// this is swallowed into an ok response rather than surfaced as an
		// error, so a late or duplicate report never breaks a worker's loop.
		apiErr := TranslateError(err)
		if apiErr.Code == "CONFLICT" {
			respondJSON(c, http.StatusOK, gin.H{"ok": true})
			return
		}
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, fragment)
}

func (h *Handlers) workerBusy(c *gin.Context) {
	idParam, ok := getParam(c, "id")
	if !ok {
		return
	}
	id, err := uuid.Parse(idParam)
	if err != nil {
		respondAPIError(c, ErrInvalidID)
		return
	}
	busy, err := h.svc.WorkerBusy(c.Request.Context(), id)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"busy": busy})
}

func (h *Handlers) queueMetrics(c *gin.Context) {
	tenantID := getQuery(c, "tenant_id", "")
	machineGroup := getQuery(c, "machine_group", "")
	if tenantID == "" {
		respondAPIError(c, NewAPIError("MISSING_PARAMETER", "tenant_id is required", http.StatusBadRequest))
		return
	}
	metrics, err := h.svc.QueueMetrics(c.Request.Context(), tenantID, machineGroup)
	if err != nil {
		respondAPIError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, metrics)
}

func (h *Handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
