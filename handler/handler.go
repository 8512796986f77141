// Package handler defines the resource driver handler plugin boundary
// (spec §4.4/§8): the capability a driver-specific implementation must
// provide, plus an optional capability interface a handler may
// additionally implement.
//
// Grounded on the original Python's ResourceDriverHandlerCapability
// (resourcedriver.py): execute_lifecycle, get_lifecycle_execution,
// find_reference, with an optional post_lifecycle_response hook
// detected via hasattr. Go has no hasattr; spec §9's redesign note asks
// for a type assertion against an optional interface instead, so
// PostResponder is split out from Handler.
package handler

import (
	"context"

	"github.com/justapithecus/resourcedriver/types"
	"github.com/justapithecus/resourcedriver/workspace"
)

// Handler executes and monitors lifecycle transitions for one driver
// implementation. Methods may block; callers pass a context for
// cancellation/deadlines.
type Handler interface {
	// ExecuteLifecycle starts (or synchronously completes) a lifecycle
	// transition. driverFiles is already extracted and scoped.
	ExecuteLifecycle(ctx context.Context, req ExecuteLifecycleRequest) (*types.LifecycleExecuteResponse, error)

	// GetLifecycleExecution reports the current status of a previously
	// started request. Errors classify via rderr (RequestNotFound,
	// TemporaryResourceDriverError, or a general ResourceDriverError).
	GetLifecycleExecution(ctx context.Context, requestID string, deploymentLocation types.DeploymentLocation) (*types.LifecycleExecution, error)

	// FindReference resolves existing infrastructure by name, always
	// synchronous (spec §4.5).
	FindReference(ctx context.Context, instanceName string, driverFiles *workspace.DirectoryTree, deploymentLocation types.DeploymentLocation) (*types.FindReferenceResponse, error)
}

// ExecuteLifecycleRequest bundles the arguments to ExecuteLifecycle.
type ExecuteLifecycleRequest struct {
	LifecycleName      string
	DriverFiles        *workspace.DirectoryTree
	SystemProperties   types.PropertyValueMap
	ResourceProperties types.PropertyValueMap
	RequestProperties  types.PropertyValueMap
	AssociatedTopology types.AssociatedTopology
	DeploymentLocation types.DeploymentLocation
}

// PostResponder is an optional capability a Handler may implement: a
// hook invoked after a terminal LifecycleExecution has been published,
// for handlers that need to react to completion (e.g. releasing a
// held resource). Detected via a type assertion on the Handler value
// (spec §9), not reflection.
type PostResponder interface {
	PostLifecycleResponse(ctx context.Context, requestID string, deploymentLocation types.DeploymentLocation) error
}
