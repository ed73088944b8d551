// Package transplant moves live legacy process instances onto freshly
// started target instances.
package transplant

import (
	"strings"

	"github.com/dbsmedya/gomigrator/internal/legacy"
)

// LegacyIDVariable correlates a target instance with the legacy instance it
// replaces. The target engine never interprets it.
const LegacyIDVariable = "legacyId"

const callActivity = "callActivity"

// Container activity types are structural and never hold a token.
var containerTypes = map[string]bool{
	"processDefinition": true,
	"subProcess":        true,
	"eventSubProcess":   true,
	"transaction":       true,
}

// ActiveElement is one leaf token of a legacy execution tree.
type ActiveElement struct {
	// ID is the legacy activity or transition instance id.
	ID string
	// ElementID is the element to activate in the target model.
	ElementID    string
	ActivityType string
	// MultiInstanceBody is set when the entry stands for a collapsed
	// multi-instance construct.
	MultiInstanceBody bool
	// Transition is set for tokens waiting before or after an activity.
	// They carry no local variables.
	Transition bool
}

// IsCallActivity reports whether the element may host a called instance.
func (e ActiveElement) IsCallActivity() bool {
	return e.ActivityType == callActivity && !e.Transition
}

// CollectActive returns the leaf tokens of an activity instance tree in
// depth-first order. A multi-instance body is returned once and its
// per-iteration children are dropped; the target engine derives the
// fan-out from the body.
func CollectActive(root *legacy.ActivityInstance) []ActiveElement {
	if root == nil {
		return nil
	}
	var out []ActiveElement
	collect(root, true, &out)
	return out
}

func collect(node *legacy.ActivityInstance, isRoot bool, out *[]ActiveElement) {
	if !isRoot && strings.HasSuffix(node.ActivityID, legacy.MultiInstanceBodySuffix) {
		*out = append(*out, ActiveElement{
			ID:                node.ID,
			ElementID:         strings.TrimSuffix(node.ActivityID, legacy.MultiInstanceBodySuffix),
			ActivityType:      node.ActivityType,
			MultiInstanceBody: true,
		})
		return
	}

	leaf := len(node.ChildActivityInstances) == 0 && len(node.ChildTransitionInstances) == 0
	if leaf && !isRoot && !containerTypes[node.ActivityType] {
		*out = append(*out, ActiveElement{
			ID:           node.ID,
			ElementID:    node.ActivityID,
			ActivityType: node.ActivityType,
		})
		return
	}

	for _, ti := range node.ChildTransitionInstances {
		elementID := strings.TrimSuffix(ti.ActivityID, legacy.MultiInstanceBodySuffix)
		*out = append(*out, ActiveElement{
			ID:                ti.ID,
			ElementID:         elementID,
			ActivityType:      ti.ActivityType,
			MultiInstanceBody: elementID != ti.ActivityID,
			Transition:        true,
		})
	}
	for i := range node.ChildActivityInstances {
		collect(&node.ChildActivityInstances[i], false, out)
	}
}
