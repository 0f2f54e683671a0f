package domain

import "time"

// Operation names the user-facing flows that report progress.
type Operation string

const (
	OpCheckApprovals    Operation = "check_approvals"
	OpApproveAll        Operation = "approve_all"
	OpDeriveCredentials Operation = "derive_credentials"
	OpResetCredentials  Operation = "reset_credentials"
	OpDeployWallet      Operation = "deploy_smart_wallet"
	OpSubmitOrder       Operation = "submit_order"
	OpOnboard           Operation = "onboard"
)

// Stage is a step within an operation.
type Stage string

const (
	StageStarted    Stage = "started"
	StageChecking   Stage = "checking"
	StageSigning    Stage = "signing"
	StageSubmitting Stage = "submitting"
	StagePolling    Stage = "polling"
	StageRetrying   Stage = "retrying"
	StageSucceeded  Stage = "succeeded"
	StageFailed     Stage = "failed"
	StageSkipped    Stage = "skipped"
)

// ProgressEvent is emitted while an operation runs so callers can render
// partial progress.
type ProgressEvent struct {
	OperationID string         `json:"operationId"`
	Operation   Operation      `json:"operation"`
	Stage       Stage          `json:"stage"`
	Message     string         `json:"message"`
	At          time.Time      `json:"at"`
	Detail      map[string]any `json:"detail,omitempty"`
}
