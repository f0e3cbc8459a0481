// Package northflank adapts the Northflank API to the
// [domain.TargetAdapter] contract. Services are addressed as
// "project/service" in the target's AppID and authenticated with a bearer
// token. Northflank splits image changes and scaling into separate calls,
// so Apply issues each only when the observed state diverges.
package northflank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/drydock-deploy/drydock/internal/domain"
)

const defaultTimeout = 30 * time.Second

// Adapter talks to the Northflank API. One value serves every
// northflank-kind target; endpoint and token come from the target.
type Adapter struct {
	// HTTP is the client used for all requests. Defaults to a client with
	// a 30s timeout.
	HTTP *http.Client
}

// service is the subset of Northflank's service object the adapter reads.
// Responses arrive wrapped in a data envelope.
type service struct {
	Data struct {
		Status     string `json:"status"`
		Deployment struct {
			External struct {
				ImagePath string `json:"imagePath"`
			} `json:"external"`
		} `json:"deployment"`
		Scaling struct {
			Instances int `json:"instances"`
		} `json:"scaling"`
	} `json:"data"`
}

type deploymentRequest struct {
	External struct {
		ImagePath string `json:"imagePath"`
	} `json:"external"`
}

type scaleRequest struct {
	Instances int `json:"instances"`
}

// CurrentState reads the service's deployed image and instance count.
func (a *Adapter) CurrentState(ctx context.Context, target domain.Target) (domain.AppliedState, error) {
	base, err := servicePath(target)
	if err != nil {
		return domain.AppliedState{}, err
	}
	var svc service
	if err := a.request(ctx, target, http.MethodGet, base, nil, &svc); err != nil {
		return domain.AppliedState{}, err
	}
	return domain.AppliedState{
		ArtifactRef: svc.Data.Deployment.External.ImagePath,
		Replicas:    svc.Data.Scaling.Instances,
		Healthy:     svc.Data.Status == "COMPLETED" || svc.Data.Status == "RUNNING",
	}, nil
}

// Apply updates the service's deployment and scaling to the desired state.
// Each call is issued only when the observed state diverges, so re-running
// an apply that already landed is a no-op.
func (a *Adapter) Apply(ctx context.Context, target domain.Target, artifactRef string, replicas int) (domain.AppliedState, error) {
	base, err := servicePath(target)
	if err != nil {
		return domain.AppliedState{}, err
	}
	var svc service
	if err := a.request(ctx, target, http.MethodGet, base, nil, &svc); err != nil {
		return domain.AppliedState{}, err
	}

	if svc.Data.Deployment.External.ImagePath != artifactRef {
		var dep deploymentRequest
		dep.External.ImagePath = artifactRef
		if err := a.request(ctx, target, http.MethodPost, base+"/deployment", dep, nil); err != nil {
			return domain.AppliedState{}, err
		}
	}
	if svc.Data.Scaling.Instances != replicas {
		if err := a.request(ctx, target, http.MethodPost, base+"/scale", scaleRequest{Instances: replicas}, nil); err != nil {
			return domain.AppliedState{}, err
		}
	}
	return domain.AppliedState{ArtifactRef: artifactRef, Replicas: replicas, Healthy: true}, nil
}

// servicePath builds the /v1/projects/{project}/services/{service} path
// from the target's "project/service" app ID.
func servicePath(target domain.Target) (string, error) {
	project, svc, ok := strings.Cut(target.AppID, "/")
	if !ok || project == "" || svc == "" {
		return "", domain.PermanentError("resolve service",
			fmt.Errorf("app ID %q is not of the form project/service", target.AppID))
	}
	return "/v1/projects/" + project + "/services/" + svc, nil
}

func (a *Adapter) request(ctx context.Context, target domain.Target, method, path string, body, out any) error {
	op := method + " " + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return domain.PermanentError(op, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.Endpoint+path, reader)
	if err != nil {
		return domain.PermanentError(op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if target.TokenEnv != "" {
		req.Header.Set("Authorization", "Bearer "+os.Getenv(target.TokenEnv))
	}

	client := a.HTTP
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
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

func classifyStatus(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	err := fmt.Errorf("northflank returned %s: %s", resp.Status, bytes.TrimSpace(body))
	switch {
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return domain.TransientError(op, err)
	default:
		return domain.PermanentError(op, err)
	}
}
