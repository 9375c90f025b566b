package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/redush-com/SaotriBench/internal/evalplugin"
	"github.com/redush-com/SaotriBench/internal/taskspec"
	"github.com/redush-com/SaotriBench/internal/testcase"
)

// ValidateCmd validates one task descriptor (--task) or every task
// discoverable under --tasks-dir, per spec.md §4.1's loader contract plus
// the cross-checks that every phase has at least one live test case and
// that every rule id resolves to a checker.
type ValidateCmd struct {
	TasksDir string `name:"tasks-dir" required:"" help:"Directory containing one subdirectory per task." type:"path"`
	Task     string `help:"Validate only this task id; otherwise validate every task found."`
	JSON     bool   `name:"json" help:"Emit machine-readable JSON output."`
}

type taskValidation struct {
	TaskID string `json:"task_id"`
	Valid  bool   `json:"valid"`
	Error  string `json:"error,omitempty"`
}

func (c *ValidateCmd) Run() error {
	dirs, err := taskspec.Discover(c.TasksDir)
	if err != nil {
		return err
	}

	var results []taskValidation
	anyInvalid := false

	for _, dir := range dirs {
		task, loadErr := taskspec.Load(dir)
		taskID := dir
		if task != nil {
			taskID = task.Config.TaskID
		}
		if c.Task != "" && taskID != c.Task {
			continue
		}

		v := taskValidation{TaskID: taskID}
		if loadErr != nil {
			v.Error = loadErr.Error()
		} else if err := crossCheckTestCases(task); err != nil {
			v.Error = err.Error()
		} else {
			v.Valid = true
		}
		if v.Error != "" {
			anyInvalid = true
		}
		results = append(results, v)
	}

	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		for _, v := range results {
			if v.Valid {
				fmt.Printf("%s: valid\n", v.TaskID)
			} else {
				fmt.Printf("%s: invalid: %s\n", v.TaskID, v.Error)
			}
		}
	}

	if anyInvalid {
		return exitError{code: 1, msg: "one or more tasks failed validation"}
	}
	return nil
}

// crossCheckTestCases loads tests.json and verifies spec.md §4.1's
// invariant that every phase has at least one live test case. When the task
// ships no evaluator_plugin, it also verifies that every rule id has a
// built-in checker; with a plugin present, unknown rule ids are left to the
// plugin and not checked here.
func crossCheckTestCases(task *taskspec.Task) error {
	store, err := testcase.Load(task.TestsPath)
	if err != nil {
		return err
	}
	for _, phase := range task.Config.Phases {
		if !store.HasLiveCase(phase.ID) {
			return fmt.Errorf("phase %d has no test case with phase <= %d", phase.ID, phase.ID)
		}
		if task.PluginPath != "" {
			continue
		}
		for _, rule := range phase.Rules {
			if _, ok := evalplugin.Builtins.Get(rule.ID); !ok {
				return fmt.Errorf("phase %d: rule %q has no built-in checker and the task ships no evaluator_plugin", phase.ID, rule.ID)
			}
		}
	}
	return nil
}

type exitError struct {
	code int
	msg  string
}

func (e exitError) Error() string { return e.msg }
func (e exitError) ExitCode() int { return e.code }
