package inference

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"segportal/internal/pkg/response"
	"segportal/internal/pkg/validator"
	"segportal/internal/session"
)

const resultContentType = "application/gzip"

// Handler serves the /inference routes. When a session gate runs in front of
// it, the signed-in user is the only one who can see or run their jobs.
type Handler struct {
	service        *Service
	sessions       *session.Issuer
	maxUploadBytes int64
}

func NewHandler(service *Service, sessions *session.Issuer, maxUploadBytes int64) *Handler {
	return &Handler{service: service, sessions: sessions, maxUploadBytes: maxUploadBytes}
}

// RegisterRoutes mounts the inference routes; middleware attached to r
// (the session gate) applies to all of them.
func (h *Handler) RegisterRoutes(r gin.IRouter, middleware ...gin.HandlerFunc) {
	inference := r.Group("/inference", middleware...)
	{
		inference.POST("/upload", h.Upload)
		inference.POST("/run", h.Run)
		inference.GET("/status/:job_id", h.Status)
		inference.GET("/result/:job_id", h.Result)
		inference.GET("/jobs", h.ListJobs)
	}
}

// Upload godoc
// @Summary     Upload a dataset archive
// @Tags        Inference
// @Accept      multipart/form-data
// @Produce     json
// @Param       file     formData file   true  "ZIP archive"
// @Param       username formData string true  "owner"
// @Param       config   formData string false "model configuration"
// @Success     201 {object} map[string]interface{}
// @Failure     400,403,500 {object} map[string]interface{}
// @Router      /inference/upload [post]
func (h *Handler) Upload(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		// headroom for the other form fields and multipart framing
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+1<<20)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.FromError(c, ErrFileTooLarge)
			return
		}
	}

	req := UploadRequest{
		File:     fileHeader,
		Username: c.PostForm("username"),
		Config:   c.PostForm("config"),
	}
	res, err := h.service.Upload(c.Request.Context(), req, caller(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"job_id": res.JobID,
		"config": res.Config,
	})
}

// Run godoc
// @Summary     Run inference on an uploaded job and download the result
// @Tags        Inference
// @Accept      json
// @Produce     application/gzip
// @Param       request body RunRequest true "job to run"
// @Success     200 {file} file
// @Failure     400,403,404,409,500 {object} map[string]interface{}
// @Router      /inference/run [post]
func (h *Handler) Run(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.FromError(c, ErrInvalidBody)
		return
	}
	if validator.Fields(req)["JobID"] == "required" {
		response.FromError(c, ErrMissingJobID)
		return
	}
	if err := validator.Validate(req); err != nil {
		response.FromError(c, err)
		return
	}

	rc, res, err := h.service.Run(c.Request.Context(), req.JobID, req.Config, caller(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	h.streamResult(c, res.JobID, rc)
}

// Status godoc
// @Summary     Job status
// @Tags        Inference
// @Produce     json
// @Param       job_id path string true "job id"
// @Success     200 {object} map[string]interface{}
// @Failure     403,404 {object} map[string]interface{}
// @Router      /inference/status/{job_id} [get]
func (h *Handler) Status(c *gin.Context) {
	rec, err := h.service.Job(c.Request.Context(), c.Param("job_id"), caller(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	body := gin.H{
		"job_id":     rec.JobID(),
		"status":     rec.Status(),
		"config":     rec.Config(),
		"created_at": rec.Upload.CreatedAt,
	}
	if msg := rec.ErrorMessage(); msg != "" {
		body["error_message"] = msg
	}
	response.Success(c, http.StatusOK, body)
}

// Result godoc
// @Summary     Download the result of a completed job
// @Tags        Inference
// @Produce     application/gzip
// @Param       job_id path string true "job id"
// @Success     200 {file} file
// @Failure     403,404,409 {object} map[string]interface{}
// @Router      /inference/result/{job_id} [get]
func (h *Handler) Result(c *gin.Context) {
	jobID := c.Param("job_id")
	rc, err := h.service.FetchResult(c.Request.Context(), jobID, caller(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	h.streamResult(c, jobID, rc)
}

// ListJobs godoc
// @Summary     Jobs of the signed-in user
// @Tags        Inference
// @Produce     json
// @Success     200 {object} map[string]interface{}
// @Failure     401 {object} map[string]interface{}
// @Router      /inference/jobs [get]
func (h *Handler) ListJobs(c *gin.Context) {
	username := caller(c)
	if username == "" {
		u, err := h.sessions.CurrentUser(c)
		if err != nil {
			response.FromError(c, err)
			return
		}
		username = u
	}

	recs, err := h.service.ListJobs(c.Request.Context(), username)
	if err != nil {
		response.FromError(c, err)
		return
	}
	items := make([]JobResponse, 0, len(recs))
	for _, rec := range recs {
		items = append(items, toJobResponse(rec))
	}
	response.Success(c, http.StatusOK, gin.H{"jobs": items})
}

func (h *Handler) streamResult(c *gin.Context, jobID string, rc io.ReadCloser) {
	defer rc.Close()
	c.DataFromReader(http.StatusOK, -1, resultContentType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="segmentation_result_%s.nii.gz"`, jobID),
	})
}

// caller is the session user resolved by the gate, or "" when the routes are open.
func caller(c *gin.Context) string {
	if b, ok := session.FromContext(c); ok {
		return b.Username
	}
	return ""
}
