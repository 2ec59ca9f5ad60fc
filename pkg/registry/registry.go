// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"fmt"
	"os"

	"grantpilot-workers/internal/common/validation"
)

func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ActivityRegistry
	err = json.Unmarshal(data, &reg)
	return &reg, err
}

// Validate checks structural integrity: conventional activity IDs, unique
// non-empty task types, and an implementation status for every entry.
func (r *ActivityRegistry) Validate() error {
	seen := make(map[string]string, len(r.Activities))
	for _, activity := range r.Activities {
		if err := validation.ValidateActivityNaming(activity.ID); err != nil {
			return fmt.Errorf("activity %q: %w", activity.ID, err)
		}
		if activity.TaskType == "" {
			return fmt.Errorf("activity %q: missing taskType", activity.ID)
		}
		if prior, dup := seen[activity.TaskType]; dup {
			return fmt.Errorf("task type %q registered by both %q and %q", activity.TaskType, prior, activity.ID)
		}
		seen[activity.TaskType] = activity.ID
		if activity.ImplementationStatus == "" {
			return fmt.Errorf("activity %q: missing implementationStatus", activity.ID)
		}
	}
	return nil
}

// FindByTaskType returns the registry entry for a task type, nil if absent.
func (r *ActivityRegistry) FindByTaskType(taskType string) *Activity {
	for i := range r.Activities {
		if r.Activities[i].TaskType == taskType {
			return &r.Activities[i]
		}
	}
	return nil
}

// RequireImplemented returns an error unless every named task type is
// present and marked implemented. Called at boot before workers register.
func (r *ActivityRegistry) RequireImplemented(taskTypes ...string) error {
	for _, taskType := range taskTypes {
		activity := r.FindByTaskType(taskType)
		if activity == nil {
			return fmt.Errorf("task type %q not present in registry", taskType)
		}
		if activity.ImplementationStatus != "implemented" {
			return fmt.Errorf("task type %q has status %q, want implemented", taskType, activity.ImplementationStatus)
		}
	}
	return nil
}
