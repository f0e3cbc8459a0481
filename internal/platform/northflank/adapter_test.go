package northflank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drydock-deploy/drydock/internal/domain"
	"github.com/drydock-deploy/drydock/internal/platform/adaptertest"
)

// fakeNorthflank is a minimal in-memory Northflank API hosting a single
// service at project p1, service s1.
type fakeNorthflank struct {
	token       string
	imagePath   string
	instances   int
	status      string
	deployments int
}

func (f *fakeNorthflank) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/projects/p1/services/s1", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		var svc service
		svc.Data.Status = f.status
		svc.Data.Deployment.External.ImagePath = f.imagePath
		svc.Data.Scaling.Instances = f.instances
		json.NewEncoder(w).Encode(svc)
	})
	mux.HandleFunc("POST /v1/projects/p1/services/s1/deployment", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		var req deploymentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		f.imagePath = req.External.ImagePath
		f.deployments++
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /v1/projects/p1/services/s1/scale", func(w http.ResponseWriter, r *http.Request) {
		if !f.authorized(w, r) {
			return
		}
		var req scaleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		f.instances = req.Instances
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func (f *fakeNorthflank) authorized(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer "+f.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return false
	}
	return true
}

func newTestTarget(t *testing.T, f *fakeNorthflank) domain.Target {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	t.Setenv("NORTHFLANK_TEST_TOKEN", f.token)
	return domain.Target{
		Name:     "test",
		Kind:     domain.AdapterNorthflank,
		Endpoint: srv.URL,
		AppID:    "p1/s1",
		TokenEnv: "NORTHFLANK_TEST_TOKEN",
	}
}

func TestAdapterContract(t *testing.T) {
	adaptertest.Run(t, func(t *testing.T) (domain.TargetAdapter, domain.Target) {
		f := &fakeNorthflank{token: "secret", status: "RUNNING"}
		return &Adapter{}, newTestTarget(t, f)
	})
}

func TestApplySkipsConvergedService(t *testing.T) {
	f := &fakeNorthflank{token: "secret", imagePath: "demo:v2", instances: 2, status: "RUNNING"}
	target := newTestTarget(t, f)
	adapter := &Adapter{}

	_, err := adapter.Apply(context.Background(), target, "demo:v2", 2)
	require.NoError(t, err)
	require.Zero(t, f.deployments, "converged service must not redeploy")
}

func TestScaleOnlyChangeSkipsDeployment(t *testing.T) {
	f := &fakeNorthflank{token: "secret", imagePath: "demo:v2", instances: 2, status: "RUNNING"}
	target := newTestTarget(t, f)
	adapter := &Adapter{}

	_, err := adapter.Apply(context.Background(), target, "demo:v2", 5)
	require.NoError(t, err)
	require.Zero(t, f.deployments)
	require.Equal(t, 5, f.instances)
}

func TestMalformedAppIDIsPermanent(t *testing.T) {
	target := domain.Target{Name: "test", Kind: domain.AdapterNorthflank, AppID: "no-slash"}
	adapter := &Adapter{}

	_, err := adapter.CurrentState(context.Background(), target)
	require.Error(t, err)
	require.False(t, domain.IsTransient(err))
}

func TestUnauthorizedIsPermanent(t *testing.T) {
	f := &fakeNorthflank{token: "secret"}
	target := newTestTarget(t, f)
	t.Setenv("NORTHFLANK_TEST_TOKEN", "wrong")
	adapter := &Adapter{}

	_, err := adapter.CurrentState(context.Background(), target)
	require.Error(t, err)
	require.False(t, domain.IsTransient(err))
}

func TestThrottlingIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)
	target := domain.Target{Name: "test", Kind: domain.AdapterNorthflank, Endpoint: srv.URL, AppID: "p1/s1"}
	adapter := &Adapter{}

	_, err := adapter.CurrentState(context.Background(), target)
	require.Error(t, err)
	require.True(t, domain.IsTransient(err))
}
