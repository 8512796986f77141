package subprocess

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/justapithecus/resourcedriver/handler"
	"github.com/justapithecus/resourcedriver/iox"
	"github.com/justapithecus/resourcedriver/rderr"
	"github.com/justapithecus/resourcedriver/types"
	"github.com/justapithecus/resourcedriver/workspace"
)

// Config configures the driver plugin process.
type Config struct {
	// Command is the plugin executable path.
	Command string
	// Args are extra arguments passed to Command.
	Args []string
}

// Handler implements handler.Handler and handler.PostResponder by
// running a single long-lived subprocess and exchanging Request/
// Response frames with it over stdin/stdout, grounded on the teacher's
// ExecutorManager (runtime/executor.go) process-lifecycle shape:
// pipes set up before Start, stdin used to send work, stdout read for
// framed replies, Wait/Kill for teardown.
type Handler struct {
	cfg Config

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	decoder *FrameDecoder
}

// New constructs a Handler and starts its subprocess.
func New(ctx context.Context, cfg Config) (*Handler, error) {
	if cfg.Command == "" {
		return nil, rderr.New(rderr.ErrInvalidConfig, "subprocess.New", fmt.Errorf("command is required"))
	}

	h := &Handler{cfg: cfg}
	if err := h.start(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Handler) start(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, h.cfg.Command, h.cfg.Args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return rderr.New(rderr.ErrResourceDriverError, "subprocess.start", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return rderr.New(rderr.ErrResourceDriverError, "subprocess.start", err)
	}
	if err := cmd.Start(); err != nil {
		return rderr.New(rderr.ErrResourceDriverError, "subprocess.start", err)
	}

	h.cmd = cmd
	h.stdin = stdin
	h.decoder = NewFrameDecoder(stdout)
	return nil
}

// Close terminates the subprocess.
func (h *Handler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stdin != nil {
		iox.DiscardClose(h.stdin)
	}
	if h.cmd != nil && h.cmd.Process != nil {
		return h.cmd.Process.Kill()
	}
	return nil
}

func (h *Handler) call(op Op, payload map[string]any) (*Response, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	frame, err := EncodeFrame(Request{Op: op, Payload: payload})
	if err != nil {
		return nil, rderr.New(rderr.ErrResourceDriverError, "subprocess.call.encode", err)
	}
	if _, err := h.stdin.Write(frame); err != nil {
		return nil, rderr.New(rderr.ErrTemporaryResourceDriverError, "subprocess.call.write", err)
	}

	resp, err := h.decoder.ReadResponse()
	if err != nil {
		return nil, rderr.New(rderr.ErrTemporaryResourceDriverError, "subprocess.call.read", err)
	}
	if !resp.OK {
		return nil, classifyPluginError(resp.Error)
	}
	return resp, nil
}

// classifyPluginError maps a plugin-reported error string to a sentinel
// kind. Plugins are expected to prefix their error with one of the
// taxonomy's kind names; anything else classifies as a general
// ResourceDriverError.
func classifyPluginError(msg string) error {
	switch {
	case hasPrefix(msg, "request_not_found"):
		return rderr.New(rderr.ErrRequestNotFound, "subprocess.call", fmt.Errorf("%s", msg))
	case hasPrefix(msg, "temporary"):
		return rderr.New(rderr.ErrTemporaryResourceDriverError, "subprocess.call", fmt.Errorf("%s", msg))
	case hasPrefix(msg, "unreachable_deployment_location"):
		return rderr.New(rderr.ErrUnreachableDeploymentLocation, "subprocess.call", fmt.Errorf("%s", msg))
	case hasPrefix(msg, "infrastructure_not_found"):
		return rderr.New(rderr.ErrInfrastructureNotFound, "subprocess.call", fmt.Errorf("%s", msg))
	default:
		return rderr.New(rderr.ErrResourceDriverError, "subprocess.call", fmt.Errorf("%s", msg))
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// ExecuteLifecycle sends an execute_lifecycle request to the plugin.
func (h *Handler) ExecuteLifecycle(ctx context.Context, req handler.ExecuteLifecycleRequest) (*types.LifecycleExecuteResponse, error) {
	var driverFilesRoot string
	if req.DriverFiles != nil {
		driverFilesRoot = req.DriverFiles.Root()
	}
	resp, err := h.call(OpExecuteLifecycle, map[string]any{
		"lifecycle_name":      req.LifecycleName,
		"driver_files_root":   driverFilesRoot,
		"system_properties":   req.SystemProperties,
		"resource_properties": req.ResourceProperties,
		"request_properties":  req.RequestProperties,
		"associated_topology": req.AssociatedTopology,
		"deployment_location": req.DeploymentLocation,
	})
	if err != nil {
		return nil, err
	}
	return decodePayload[types.LifecycleExecuteResponse](resp.Payload)
}

// GetLifecycleExecution sends a get_lifecycle_execution request.
func (h *Handler) GetLifecycleExecution(ctx context.Context, requestID string, deploymentLocation types.DeploymentLocation) (*types.LifecycleExecution, error) {
	resp, err := h.call(OpGetLifecycleExecution, map[string]any{
		"request_id":          requestID,
		"deployment_location": deploymentLocation,
	})
	if err != nil {
		return nil, err
	}
	return decodePayload[types.LifecycleExecution](resp.Payload)
}

// FindReference sends a find_reference request.
func (h *Handler) FindReference(ctx context.Context, instanceName string, driverFiles *workspace.DirectoryTree, deploymentLocation types.DeploymentLocation) (*types.FindReferenceResponse, error) {
	var driverFilesRoot string
	if driverFiles != nil {
		driverFilesRoot = driverFiles.Root()
	}
	resp, err := h.call(OpFindReference, map[string]any{
		"instance_name":       instanceName,
		"driver_files_root":   driverFilesRoot,
		"deployment_location": deploymentLocation,
	})
	if err != nil {
		return nil, err
	}
	return decodePayload[types.FindReferenceResponse](resp.Payload)
}

// PostLifecycleResponse sends a post_lifecycle_response request. The
// caller (monitor) only invokes this after asserting the plugin
// implements handler.PostResponder.
func (h *Handler) PostLifecycleResponse(ctx context.Context, requestID string, deploymentLocation types.DeploymentLocation) error {
	_, err := h.call(OpPostLifecycleResponse, map[string]any{
		"request_id":          requestID,
		"deployment_location": deploymentLocation,
	})
	return err
}

// decodePayload round-trips a generic map payload through JSON into T,
// since msgpack already decoded it into plain maps/slices on the wire
// decoder side.
func decodePayload[T any](payload map[string]any) (*T, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, rderr.New(rderr.ErrResourceDriverError, "subprocess.decode_payload", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, rderr.New(rderr.ErrResourceDriverError, "subprocess.decode_payload", err)
	}
	return &out, nil
}

var (
	_ handler.Handler       = (*Handler)(nil)
	_ handler.PostResponder = (*Handler)(nil)
)
