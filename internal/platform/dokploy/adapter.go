// Package dokploy adapts a Dokploy instance to the [domain.TargetAdapter]
// contract. Dokploy exposes a tRPC-style HTTP API authenticated with an
// x-api-key header; applications are addressed by their applicationId.
package dokploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/drydock-deploy/drydock/internal/domain"
)

const defaultTimeout = 30 * time.Second

// Adapter talks to one or more Dokploy instances. The instance endpoint and
// API token come from the target, so a single Adapter value serves every
// dokploy-kind target.
type Adapter struct {
	// HTTP is the client used for all requests. Defaults to a client with
	// a 30s timeout.
	HTTP *http.Client
}

type application struct {
	ApplicationID string `json:"applicationId"`
	DockerImage   string `json:"dockerImage"`
	Replicas      int    `json:"replicas"`
	Status        string `json:"applicationStatus"`
}

// updateRequest always carries both fields: omitting replicas would drop a
// scale to zero from the wire, leaving the platform on its old count.
type updateRequest struct {
	ApplicationID string `json:"applicationId"`
	DockerImage   string `json:"dockerImage"`
	Replicas      int    `json:"replicas"`
}

type deployRequest struct {
	ApplicationID string `json:"applicationId"`
}

// CurrentState reads the application's configured image and replica count.
func (a *Adapter) CurrentState(ctx context.Context, target domain.Target) (domain.AppliedState, error) {
	app, err := a.getApplication(ctx, target)
	if err != nil {
		return domain.AppliedState{}, err
	}
	return domain.AppliedState{
		ArtifactRef: app.DockerImage,
		Replicas:    app.Replicas,
		Healthy:     app.Status == "done" || app.Status == "running",
	}, nil
}

// Apply reconfigures the application and triggers a deployment. The update
// is skipped when the configuration already matches, so re-runs of the same
// apply converge instead of redeploying.
func (a *Adapter) Apply(ctx context.Context, target domain.Target, artifactRef string, replicas int) (domain.AppliedState, error) {
	app, err := a.getApplication(ctx, target)
	if err != nil {
		return domain.AppliedState{}, err
	}
	if app.DockerImage == artifactRef && app.Replicas == replicas {
		return domain.AppliedState{ArtifactRef: artifactRef, Replicas: replicas, Healthy: true}, nil
	}

	update := updateRequest{ApplicationID: target.AppID, DockerImage: artifactRef, Replicas: replicas}
	if err := a.post(ctx, target, "/api/application.update", update, nil); err != nil {
		return domain.AppliedState{}, err
	}
	if err := a.post(ctx, target, "/api/application.deploy", deployRequest{ApplicationID: target.AppID}, nil); err != nil {
		return domain.AppliedState{}, err
	}
	return domain.AppliedState{ArtifactRef: artifactRef, Replicas: replicas, Healthy: true}, nil
}

func (a *Adapter) getApplication(ctx context.Context, target domain.Target) (application, error) {
	u := target.Endpoint + "/api/application.one?applicationId=" + url.QueryEscape(target.AppID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return application{}, domain.PermanentError("read application", err)
	}

	var app application
	if err := a.do(req, target, "read application", &app); err != nil {
		return application{}, err
	}
	return app, nil
}

func (a *Adapter) post(ctx context.Context, target domain.Target, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return domain.PermanentError("encode request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.Endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return domain.PermanentError("build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return a.do(req, target, "call "+path, out)
}

func (a *Adapter) do(req *http.Request, target domain.Target, op string, out any) error {
	if target.TokenEnv != "" {
		req.Header.Set("x-api-key", os.Getenv(target.TokenEnv))
	}

	client := a.HTTP
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		// Connection resets, DNS failures, and timeouts are retryable.
		return domain.TransientError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return classifyStatus(op, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.PermanentError(op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// classifyStatus maps an HTTP error status to the adapter error taxonomy:
// overload and server-side statuses are transient, everything else means
// the request itself is wrong and retrying cannot help.
func classifyStatus(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("dokploy returned %s: %s", resp.Status, bytes.TrimSpace(body))
	switch {
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return domain.TransientError(op, err)
	default:
		return domain.PermanentError(op, err)
	}
}
