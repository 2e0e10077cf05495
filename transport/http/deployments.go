package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/agentgraph/engine/apierror"
)

func pathVersion(r *http.Request) (int, error) {
	v, err := strconv.Atoi(r.PathValue("version"))
	if err != nil {
		return 0, apierror.Validation("transport.deployments", "version must be an integer")
	}
	return v, nil
}

type deployRequest struct {
	Name string `json:"name,omitempty"`
}

type deployResponse struct {
	Version           int    `json:"version"`
	Name              string `json:"name"`
	Hash              string `json:"hash"`
	IsActive          bool   `json:"is_active"`
	NeedsRedeployment bool   `json:"needs_redeployment"`
}

// handleDeploy serves POST /v1/graphs/{graph_id}/deployments.
func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request) {
	graphID := r.PathValue("graph_id")
	var body deployRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, apierror.Validation("transport.deploy", "invalid request body"))
			return
		}
	}

	v, needsRedeploy, err := s.deployment.Deploy(r.Context(), graphID, body.Name, callerFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deployResponse{
		Version: v.Version, Name: v.Name, Hash: v.Hash, IsActive: v.IsActive, NeedsRedeployment: needsRedeploy,
	})
}

// handleUndeploy serves DELETE /v1/graphs/{graph_id}/deployments.
func (s *Server) handleUndeploy(w http.ResponseWriter, r *http.Request) {
	graphID := r.PathValue("graph_id")
	if err := s.deployment.Undeploy(r.Context(), graphID, callerFromRequest(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statusResponse struct {
	IsDeployed        bool   `json:"is_deployed"`
	DeployedAt        *int64 `json:"deployed_at,omitempty"`
	ActiveVersion     *int   `json:"active_version,omitempty"`
	NeedsRedeployment bool   `json:"needs_redeployment"`
}

// handleDeploymentStatus serves GET /v1/graphs/{graph_id}/deployments/status.
func (s *Server) handleDeploymentStatus(w http.ResponseWriter, r *http.Request) {
	graphID := r.PathValue("graph_id")
	status, err := s.deployment.GetDeploymentStatus(r.Context(), graphID, callerFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	resp := statusResponse{
		IsDeployed: status.IsDeployed, ActiveVersion: status.ActiveVersion, NeedsRedeployment: status.NeedsRedeployment,
	}
	if status.DeployedAt != nil {
		millis := status.DeployedAt.UnixMilli()
		resp.DeployedAt = &millis
	}
	writeJSON(w, http.StatusOK, resp)
}

type versionResponse struct {
	Version   int    `json:"version"`
	Name      string `json:"name"`
	Hash      string `json:"hash"`
	IsActive  bool   `json:"is_active"`
	CreatedAt int64  `json:"created_at"`
}

type listVersionsResponse struct {
	Versions []versionResponse `json:"versions"`
	Total    int               `json:"total"`
}

// handleListVersions serves GET /v1/graphs/{graph_id}/deployments.
func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	graphID := r.PathValue("graph_id")
	page, size := pageParams(r)

	result, err := s.deployment.ListVersions(r.Context(), graphID, page, size, callerFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	versions := make([]versionResponse, len(result.Versions))
	for i, v := range result.Versions {
		versions[i] = versionResponse{
			Version: v.Version, Name: v.Name, Hash: v.Hash, IsActive: v.IsActive, CreatedAt: v.CreatedAt.UnixMilli(),
		}
	}
	writeJSON(w, http.StatusOK, listVersionsResponse{Versions: versions, Total: result.Total})
}

func pageParams(r *http.Request) (page, size int) {
	size = 20
	if v, err := strconv.Atoi(r.URL.Query().Get("size")); err == nil && v > 0 {
		size = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v >= 0 {
		page = v
	}
	return page, size
}

// handleGetVersion serves GET /v1/graphs/{graph_id}/deployments/{version}.
func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	graphID := r.PathValue("graph_id")
	version, err := pathVersion(r)
	if err != nil {
		writeError(w, err)
		return
	}
	v, err := s.deployment.GetVersion(r.Context(), graphID, version, callerFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versionResponse{
		Version: v.Version, Name: v.Name, Hash: v.Hash, IsActive: v.IsActive, CreatedAt: v.CreatedAt.UnixMilli(),
	})
}

// handleGetVersionState serves GET /v1/graphs/{graph_id}/deployments/{version}/state.
func (s *Server) handleGetVersionState(w http.ResponseWriter, r *http.Request) {
	graphID := r.PathValue("graph_id")
	version, err := pathVersion(r)
	if err != nil {
		writeError(w, err)
		return
	}
	state, err := s.deployment.GetVersionState(r.Context(), graphID, version, callerFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type renameVersionRequest struct {
	Name string `json:"name"`
}

// handleRenameVersion serves PATCH /v1/graphs/{graph_id}/deployments/{version}.
func (s *Server) handleRenameVersion(w http.ResponseWriter, r *http.Request) {
	graphID := r.PathValue("graph_id")
	version, err := pathVersion(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body renameVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, apierror.Validation("transport.rename_version", "name is required"))
		return
	}
	if err := s.deployment.RenameVersion(r.Context(), graphID, version, body.Name, callerFromRequest(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleActivateVersion serves POST /v1/graphs/{graph_id}/deployments/{version}/activate.
func (s *Server) handleActivateVersion(w http.ResponseWriter, r *http.Request) {
	graphID := r.PathValue("graph_id")
	version, err := pathVersion(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.deployment.ActivateVersion(r.Context(), graphID, version, callerFromRequest(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRevertToVersion serves POST /v1/graphs/{graph_id}/deployments/{version}/revert.
func (s *Server) handleRevertToVersion(w http.ResponseWriter, r *http.Request) {
	graphID := r.PathValue("graph_id")
	version, err := pathVersion(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.deployment.RevertToVersion(r.Context(), graphID, version, callerFromRequest(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteVersion serves DELETE /v1/graphs/{graph_id}/deployments/{version}.
func (s *Server) handleDeleteVersion(w http.ResponseWriter, r *http.Request) {
	graphID := r.PathValue("graph_id")
	version, err := pathVersion(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.deployment.DeleteVersion(r.Context(), graphID, version, callerFromRequest(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
