package taskspec

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Layout pins down the on-disk file names a task directory is expected to
// contain (spec.md §6.2 leaves exact names to the implementation).
const (
	DescriptorFile      = "task.yaml"
	ProblemFile         = "problem.md"
	TestsFile           = "tests.json"
	EvaluatorPluginFile = "evaluator_plugin"
)

// Task is the fully loaded, in-memory representation of a task directory:
// the descriptor plus the paths to its companion files. It does not load
// test cases or the evaluator plugin itself — callers (internal/testcase,
// internal/evalplugin) own those, keeping the loader's contract narrow.
type Task struct {
	Config      TaskConfig
	Dir         string
	ProblemMD   string
	TestsPath   string
	PluginPath  string // empty if the task ships no evaluator plugin
}

// Load parses task.yaml, problem.md and checks for tests.json/evaluator_plugin
// under dir, returning a fully validated Task. Load never runs evaluator
// logic or starts a sandbox; it only does structural parsing and validation,
// matching spec.md §4.1's contract.
func Load(dir string) (*Task, error) {
	descriptorPath := filepath.Join(dir, DescriptorFile)
	raw, err := os.ReadFile(descriptorPath)
	if err != nil {
		return nil, fmt.Errorf("taskspec: reading descriptor %s: %w", descriptorPath, err)
	}

	var cfg TaskConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("taskspec: parsing descriptor %s: %w", descriptorPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("taskspec: %s: %w", dir, err)
	}

	problemPath := filepath.Join(dir, ProblemFile)
	problemBytes, err := os.ReadFile(problemPath)
	if err != nil {
		return nil, fmt.Errorf("taskspec: reading problem statement %s: %w", problemPath, err)
	}

	testsPath := filepath.Join(dir, TestsFile)
	if _, err := os.Stat(testsPath); err != nil {
		return nil, fmt.Errorf("taskspec: missing tests file %s: %w", testsPath, err)
	}

	task := &Task{
		Config:    cfg,
		Dir:       dir,
		ProblemMD: string(problemBytes),
		TestsPath: testsPath,
	}

	pluginPath := filepath.Join(dir, EvaluatorPluginFile)
	if info, err := os.Stat(pluginPath); err == nil && !info.IsDir() {
		task.PluginPath = pluginPath
	}

	return task, nil
}

// Discover finds every task directory immediately under tasksDir (a
// directory containing task.yaml counts as a task directory), for the
// `list` and bulk `validate` CLI commands.
func Discover(tasksDir string) ([]string, error) {
	entries, err := os.ReadDir(tasksDir)
	if err != nil {
		return nil, fmt.Errorf("taskspec: reading tasks directory %s: %w", tasksDir, err)
	}

	var dirs []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(tasksDir, entry.Name())
		if _, err := os.Stat(filepath.Join(candidate, DescriptorFile)); err == nil {
			dirs = append(dirs, candidate)
		}
	}
	return dirs, nil
}
