package endpoints

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/crestline-labs/duework/internal/api"
	"github.com/crestline-labs/duework/internal/store"
	"github.com/crestline-labs/duework/internal/svcctx"
)

// CreateJobRequest is the request body for job creation.
type CreateJobRequest struct {
	Queue   string         `json:"queue"`
	UserID  string         `json:"user_id"`
	Profile map[string]any `json:"profile,omitempty"`
}

// CreateJobEndpoint handles POST /api/jobs.
type CreateJobEndpoint struct{}

func (e *CreateJobEndpoint) Group() string { return "jobs" }

func (e *CreateJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/jobs", e.handler
}

func (e *CreateJobEndpoint) RequiresInit() bool { return true }

func (e *CreateJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Queue == "" {
		writeError(w, http.StatusBadRequest, "queue is required")
		return
	}

	st := svcctx.StoreFrom(r.Context())
	job := &store.Job{
		Queue:   req.Queue,
		UserID:  req.UserID,
		Profile: req.Profile,
	}
	if err := st.CreateJob(r.Context(), job); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

func (e *CreateJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	var queue, userID, profilePath string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create and queue a new job",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := CreateJobRequest{Queue: queue, UserID: userID}
			if profilePath != "" {
				data, err := os.ReadFile(profilePath)
				if err != nil {
					return fmt.Errorf("failed to read profile: %w", err)
				}
				if err := json.Unmarshal(data, &req.Profile); err != nil {
					return fmt.Errorf("failed to parse profile: %w", err)
				}
			}

			client := api.NewClient(getServerURL())
			var job store.Job
			if err := client.Post(cmd.Context(), "/api/jobs", req, &job); err != nil {
				return err
			}
			return api.Output(job)
		},
	}
	cmd.Flags().StringVar(&queue, "queue", "", "queue name (panel, extraction, debate, screening)")
	cmd.Flags().StringVar(&userID, "user", "", "user ID the job runs for")
	cmd.Flags().StringVar(&profilePath, "profile", "", "path to a JSON profile file")
	_ = cmd.MarkFlagRequired("queue")
	return cmd
}

// ListJobsEndpoint handles GET /api/jobs.
type ListJobsEndpoint struct{}

func (e *ListJobsEndpoint) Group() string { return "jobs" }

func (e *ListJobsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs", e.handler
}

func (e *ListJobsEndpoint) RequiresInit() bool { return true }

func (e *ListJobsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	st := svcctx.StoreFrom(r.Context())
	jobs, err := st.ListJobs(r.Context(), r.URL.Query().Get("queue"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, jobs)
}

func (e *ListJobsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var queue string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := fmt.Sprintf("/api/jobs?limit=%d", limit)
			if queue != "" {
				path += "&queue=" + queue
			}
			client := api.NewClient(getServerURL())
			var jobs []*store.Job
			if err := client.Get(cmd.Context(), path, &jobs); err != nil {
				return err
			}
			return api.Output(jobs)
		},
	}
	cmd.Flags().StringVar(&queue, "queue", "", "filter by queue")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of jobs")
	return cmd
}

// GetJobResponse includes the job record plus its side-table data.
type GetJobResponse struct {
	*store.Job

	Specialists []store.Specialist    `json:"specialists,omitempty"`
	Overflow    []store.OverflowEntry `json:"overflow,omitempty"`
}

// GetJobEndpoint handles GET /api/jobs/{id}.
type GetJobEndpoint struct{}

func (e *GetJobEndpoint) Group() string { return "jobs" }

func (e *GetJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{id}", e.handler
}

func (e *GetJobEndpoint) RequiresInit() bool { return true }

func (e *GetJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "job id is required")
		return
	}

	st := svcctx.StoreFrom(r.Context())
	job, err := st.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	resp := GetJobResponse{Job: job}
	if specialists, err := st.ListSpecialists(r.Context(), id); err == nil {
		resp.Specialists = specialists
	}
	if overflow, err := st.ListOverflow(r.Context(), id); err == nil {
		resp.Overflow = overflow
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *GetJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a job by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp GetJobResponse
			if err := client.Get(cmd.Context(), "/api/jobs/"+args[0], &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}

// RetryJobEndpoint handles POST /api/jobs/{id}/retry. Only errored jobs
// can be re-queued; cached phase outputs are kept so the retry resumes
// from the last checkpoint.
type RetryJobEndpoint struct{}

func (e *RetryJobEndpoint) Group() string { return "jobs" }

func (e *RetryJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/jobs/{id}/retry", e.handler
}

func (e *RetryJobEndpoint) RequiresInit() bool { return true }

func (e *RetryJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "job id is required")
		return
	}

	st := svcctx.StoreFrom(r.Context())
	if err := st.RetryJob(r.Context(), id); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	job, err := st.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (e *RetryJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <id>",
		Short: "Re-queue an errored job from its last checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var job store.Job
			if err := client.Post(cmd.Context(), "/api/jobs/"+args[0]+"/retry", nil, &job); err != nil {
				return err
			}
			return api.Output(job)
		},
	}
}

// JobStatusResponse is the compact progress view of a job.
type JobStatusResponse struct {
	ID           string   `json:"id"`
	Status       string   `json:"status"`
	CurrentPhase string   `json:"current_phase,omitempty"`
	DonePhases   []string `json:"done_phases,omitempty"`
	ErrorMessage string   `json:"error_message,omitempty"`
}

// JobStatusEndpoint handles GET /api/jobs/{id}/status. Progress is read
// straight off the job row: status, current_phase, and which raw_files
// entries exist.
type JobStatusEndpoint struct{}

func (e *JobStatusEndpoint) Group() string { return "jobs" }

func (e *JobStatusEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{id}/status", e.handler
}

func (e *JobStatusEndpoint) RequiresInit() bool { return true }

func (e *JobStatusEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "job id is required")
		return
	}

	st := svcctx.StoreFrom(r.Context())
	job, err := st.GetJob(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}

	resp := JobStatusResponse{
		ID:           job.ID,
		Status:       string(job.Status),
		CurrentPhase: job.CurrentPhase,
		ErrorMessage: job.ErrorMessage,
	}
	for phase, raw := range job.RawFiles {
		if raw != "" {
			resp.DonePhases = append(resp.DonePhases, phase)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *JobStatusEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Get a job's progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp JobStatusResponse
			if err := client.Get(cmd.Context(), "/api/jobs/"+args[0]+"/status", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
