package main

import (
	"fmt"

	"github.com/redush-com/SaotriBench/internal/taskspec"
)

// ListCmd lists every task directory discoverable under --tasks-dir.
type ListCmd struct {
	TasksDir string `name:"tasks-dir" required:"" help:"Directory containing one subdirectory per task." type:"path"`
}

func (c *ListCmd) Run() error {
	dirs, err := taskspec.Discover(c.TasksDir)
	if err != nil {
		return err
	}
	if len(dirs) == 0 {
		fmt.Println("no tasks found")
		return nil
	}

	for _, dir := range dirs {
		task, err := taskspec.Load(dir)
		if err != nil {
			fmt.Printf("%-24s  <failed to load: %v>\n", dir, err)
			continue
		}
		fmt.Printf("%-24s  %-8s  %d phase(s)  %s\n", task.Config.TaskID, task.Config.Difficulty, len(task.Config.Phases), task.Config.Name)
	}
	return nil
}
