package analysis

import (
	"sort"
	"sync"

	"github.com/jengzang/respatch/internal/validation"
)

// Stage describes one registered pipeline stage
type Stage struct {
	Name        string `json:"name"`
	Order       int    `json:"order"`
	Description string `json:"description"`
}

var (
	registryMu    sync.RWMutex
	stageRegistry = make(map[string]Stage)
)

// RegisterStage registers a stage. Stage packages call it from init.
func RegisterStage(stage Stage) {
	registryMu.Lock()
	defer registryMu.Unlock()
	stageRegistry[stage.Name] = stage
}

// GetStage looks up a registered stage by name
func GetStage(name string) (Stage, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := stageRegistry[name]
	return s, ok
}

// Stages returns all registered stages in pipeline order
func Stages() []Stage {
	registryMu.RLock()
	defer registryMu.RUnlock()

	out := make([]Stage, 0, len(stageRegistry))
	for _, s := range stageRegistry {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Order < out[j].Order
	})
	return out
}

// ValidateParams validates stage parameters and converts the first failed
// rule into a SchemaError
func ValidateParams(stage string, params interface{}) error {
	err := validation.Struct(params)
	if err == nil {
		return nil
	}

	if verrs, ok := err.(validation.Errors); ok && len(verrs) > 0 {
		return NewSchemaError(stage, verrs[0].Field, verrs.Error())
	}
	return NewSchemaError(stage, "", err.Error())
}
