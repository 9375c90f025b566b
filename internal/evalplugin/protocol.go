// Package evalplugin loads per-task evaluator logic that goes beyond the
// built-in rule archetypes as out-of-process plugins, using the teacher's
// hashicorp/go-plugin loading pattern (plugins/grpc/loader.go) adapted from
// gRPC to go-plugin's net/rpc transport: net/rpc plugins need only a plain
// Go interface and a handshake, not generated protobuf stubs, which makes
// them the only go-plugin transport that can be hand-written here (see
// DESIGN.md).
package evalplugin

import "github.com/hashicorp/go-plugin"

// Handshake is the magic-cookie handshake a task's evaluator_plugin
// executable must answer, mirroring the teacher's own handshakeConfig
// pattern (plugins/grpc/loader.go) with a project-specific cookie so a
// stray executable can never be mistaken for a rule-checker plugin.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "SAOTRIBENCH_EVALUATOR_PLUGIN",
	MagicCookieValue: "rule_checker_v1",
}

// pluginMapKey is the name RuleChecker is dispensed under.
const pluginMapKey = "rule_checker"

// SandboxErrorInfo mirrors sandbox.Error across the plugin boundary; the
// plugin has no dependency on the sandbox package.
type SandboxErrorInfo struct {
	Type    string
	Message string
}

// CheckRequest carries everything a rule checker needs to judge one
// (rule, test case) pair for one attempt, per spec.md §4.3's evaluation
// contract. Fields irrelevant to a given rule are left zero.
type CheckRequest struct {
	RuleID   string
	Scope    string
	PhaseID  int
	Input    any
	Expected any

	// Output is the sandboxed call's return value, nil if Err is set.
	Output any
	Err    *SandboxErrorInfo

	// InputBefore/InputAfter support mutation checks: InputBefore is a
	// deep copy taken before the call, InputAfter is the same argument
	// object's state after the call returned.
	InputBefore any
	InputAfter  any

	// RepeatOutput is a second invocation's output with an identical
	// deep-copied input, for determinism checks. Nil if not computed.
	RepeatOutput   any
	RepeatErr      *SandboxErrorInfo
	RepeatComputed bool
}

// CheckResponse is a rule checker's verdict for one CheckRequest.
type CheckResponse struct {
	Satisfied bool
	Reason    string
}

// RuleChecker is implemented by task-authored evaluator_plugin executables
// and by the built-in archetypes in builtin.go.
type RuleChecker interface {
	Check(req CheckRequest) (CheckResponse, error)
}
