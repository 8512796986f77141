package driver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/justapithecus/resourcedriver/bus/localbus"
	"github.com/justapithecus/resourcedriver/handler"
	"github.com/justapithecus/resourcedriver/log"
	"github.com/justapithecus/resourcedriver/messaging"
	"github.com/justapithecus/resourcedriver/monitor"
	"github.com/justapithecus/resourcedriver/queue"
	"github.com/justapithecus/resourcedriver/requestqueue"
	"github.com/justapithecus/resourcedriver/types"
	"github.com/justapithecus/resourcedriver/workspace"
)

const emptyZipBase64 = "UEsFBgAAAAAAAAAAAAAAAAAAAAAAAA=="

type fakeHandler struct {
	resp *types.LifecycleExecuteResponse
	err  error

	findResp *types.FindReferenceResponse
	findErr  error
}

func (f *fakeHandler) ExecuteLifecycle(ctx context.Context, req handler.ExecuteLifecycleRequest) (*types.LifecycleExecuteResponse, error) {
	return f.resp, f.err
}

func (f *fakeHandler) GetLifecycleExecution(ctx context.Context, requestID string, deploymentLocation types.DeploymentLocation) (*types.LifecycleExecution, error) {
	return nil, nil
}

func (f *fakeHandler) FindReference(ctx context.Context, instanceName string, driverFiles *workspace.DirectoryTree, deploymentLocation types.DeploymentLocation) (*types.FindReferenceResponse, error) {
	return f.findResp, f.findErr
}

var _ handler.Handler = (*fakeHandler)(nil)

type testEnv struct {
	bus       *localbus.Bus
	workspace *workspace.Manager
	monitor   *monitor.Service
	messaging *messaging.Service
	reqQueue  *requestqueue.Service
}

func newTestEnv(t *testing.T, h handler.Handler) *testEnv {
	t.Helper()
	b := localbus.New()

	ws, err := workspace.New(workspace.Config{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}

	jq, err := queue.New("job_queue", b.Publisher(), b.Inbox("job_queue"), log.New())
	if err != nil {
		t.Fatalf("queue.New: %v", err)
	}
	msgSvc, err := messaging.New(messaging.Config{CompletionTopic: "lifecycle.events"}, b.Publisher())
	if err != nil {
		t.Fatalf("messaging.New: %v", err)
	}
	monSvc, err := monitor.New(jq, msgSvc, h, log.New())
	if err != nil {
		t.Fatalf("monitor.New: %v", err)
	}
	reqQueue, err := requestqueue.New(
		requestqueue.Config{RequestTopic: "lifecycle.requests", FailedTopic: "lifecycle.requests.failed"},
		b.Publisher(), b.Inbox("lifecycle.requests"),
		ws, h, msgSvc, monSvc, log.New(),
	)
	if err != nil {
		t.Fatalf("requestqueue.New: %v", err)
	}

	return &testEnv{bus: b, workspace: ws, monitor: monSvc, messaging: msgSvc, reqQueue: reqQueue}
}

func newService(t *testing.T, cfg Config, h handler.Handler) (*Service, *testEnv) {
	t.Helper()
	env := newTestEnv(t, h)
	svc, err := New(cfg, env.workspace, h, env.monitor, env.messaging, env.reqQueue, log.New())
	if err != nil {
		t.Fatalf("driver.New: %v", err)
	}
	return svc, env
}

func baseRequest() ExecuteLifecycleRequest {
	return ExecuteLifecycleRequest{
		LifecycleName:      "Install",
		DriverFiles:        emptyZipBase64,
		DeploymentLocation: types.DeploymentLocation{"region": "us"},
	}
}

func TestExecuteLifecycle_RejectsInvalidRequest(t *testing.T) {
	svc, _ := newService(t, Config{}, &fakeHandler{})
	_, err := svc.ExecuteLifecycle(context.Background(), ExecuteLifecycleRequest{})
	if err == nil {
		t.Fatalf("expected error for empty request")
	}
}

func TestExecuteLifecycle_AsyncRequestsEnabled_EnqueuesWithoutCallingHandler(t *testing.T) {
	h := &fakeHandler{resp: &types.LifecycleExecuteResponse{RequestID: "should-not-be-used"}}
	svc, env := newService(t, Config{AsyncRequestsEnabled: true}, h)

	resp, err := svc.ExecuteLifecycle(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("ExecuteLifecycle: %v", err)
	}
	if resp.RequestID == "" {
		t.Fatalf("expected a minted request id")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	d, err := env.bus.Inbox("lifecycle.requests").Receive(ctx)
	if err != nil {
		t.Fatalf("expected request enqueued onto request topic: %v", err)
	}
	var queued types.LifecycleRequest
	if err := json.Unmarshal(d.Body, &queued); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if queued.RequestID != resp.RequestID {
		t.Fatalf("queued request id %q does not match returned %q", queued.RequestID, resp.RequestID)
	}
}

func TestExecuteLifecycle_SyncWithAsyncEnabled_SchedulesMonitoring(t *testing.T) {
	h := &fakeHandler{resp: &types.LifecycleExecuteResponse{RequestID: "r1"}}
	svc, env := newService(t, Config{AsyncRequestsEnabled: false, AsyncEnabled: true}, h)

	resp, err := svc.ExecuteLifecycle(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("ExecuteLifecycle: %v", err)
	}
	if resp.RequestID != "r1" {
		t.Fatalf("expected handler's request id to be returned, got %q", resp.RequestID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := env.bus.Inbox("job_queue").Receive(ctx); err != nil {
		t.Fatalf("expected monitor job to be queued: %v", err)
	}
}

func TestExecuteLifecycle_FullySynchronous_NoMonitoringScheduled(t *testing.T) {
	h := &fakeHandler{resp: &types.LifecycleExecuteResponse{RequestID: "r1"}}
	svc, env := newService(t, Config{AsyncRequestsEnabled: false, AsyncEnabled: false}, h)

	resp, err := svc.ExecuteLifecycle(context.Background(), baseRequest())
	if err != nil {
		t.Fatalf("ExecuteLifecycle: %v", err)
	}
	if resp.RequestID != "r1" {
		t.Fatalf("expected handler's request id, got %q", resp.RequestID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if _, err := env.bus.Inbox("job_queue").Receive(ctx); err == nil {
		t.Fatalf("expected no monitor job to be queued")
	}
}

func TestFindReference_AlwaysSynchronous(t *testing.T) {
	h := &fakeHandler{findResp: &types.FindReferenceResponse{Resources: []types.FindReferenceResult{{ID: "i1", Name: "n1"}}}}
	svc, _ := newService(t, Config{AsyncRequestsEnabled: true}, h)

	resp, err := svc.FindReference(context.Background(), FindReferenceRequest{
		InstanceName:       "n1",
		DriverFiles:        emptyZipBase64,
		DeploymentLocation: types.DeploymentLocation{"region": "us"},
	})
	if err != nil {
		t.Fatalf("FindReference: %v", err)
	}
	if len(resp.Resources) != 1 || resp.Resources[0].ID != "i1" {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestFindReference_RejectsInvalidRequest(t *testing.T) {
	svc, _ := newService(t, Config{}, &fakeHandler{})
	_, err := svc.FindReference(context.Background(), FindReferenceRequest{})
	if err == nil {
		t.Fatalf("expected error for empty request")
	}
}
