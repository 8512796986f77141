package types

// LifecycleExecutionMonitorJobType is the job_type under which
// monitor.Service registers its poll handler with queue.Service, matching
// the source's LIFECYCLE_EXECUTION_MONITOR_JOB_TYPE constant exactly so
// that job payloads already in flight during a deploy remain routable.
const LifecycleExecutionMonitorJobType = "LifecycleExecutionMonitoring"

// MonitorJob is the poll unit driving a single execution-status check
// (spec §3). It is created once by driver.Service or requestqueue.Service
// after a successful handler dispatch, consumed by monitor.Service on each
// poll, and either dropped (terminal / not-found) or republished
// (in-progress / transient failure).
type MonitorJob struct {
	JobType            string             `json:"job_type"`
	RequestID          string             `json:"request_id"`
	DeploymentLocation DeploymentLocation `json:"deployment_location"`
	TenantID           string             `json:"tenant_id,omitempty"`
}
