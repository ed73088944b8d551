package graph

import (
	"container/list"
	"errors"
	"fmt"
	"strings"

	"github.com/dbsmedya/gomigrator/internal/types"
)

// processingQueue holds nodes that are ready to be processed (in-degree 0).
type processingQueue struct {
	queue *list.List
}

func newProcessingQueue() *processingQueue {
	return &processingQueue{queue: list.New()}
}

func (pq *processingQueue) enqueue(node types.EntityType) {
	pq.queue.PushBack(node)
}

func (pq *processingQueue) dequeue() (types.EntityType, bool) {
	if pq.queue.Len() == 0 {
		return "", false
	}
	elem := pq.queue.Front()
	pq.queue.Remove(elem)
	return elem.Value.(types.EntityType), true
}

func (pq *processingQueue) isEmpty() bool {
	return pq.queue.Len() == 0
}

// CalculateInDegrees computes the number of incoming edges for each node.
func (g *Graph) CalculateInDegrees() map[types.EntityType]int {
	inDegree := make(map[types.EntityType]int, g.NodeCount())
	for _, name := range g.AllNodes() {
		inDegree[name] = len(g.parents[name])
	}
	return inDegree
}

// initializeQueue enqueues zero in-degree nodes in insertion order.
func (g *Graph) initializeQueue(inDegree map[types.EntityType]int) *processingQueue {
	pq := newProcessingQueue()
	for _, name := range g.AllNodes() {
		if inDegree[name] == 0 {
			pq.enqueue(name)
		}
	}
	return pq
}

// ErrCycleDetected is returned when the dependency graph contains a cycle,
// making topological sorting impossible.
var ErrCycleDetected = errors.New("cycle detected in dependency graph")

// CycleInfo contains information about incomplete processing due to cycles.
type CycleInfo struct {
	TotalNodes        int                // Total number of nodes in the graph
	ProcessedNodes    int                // Number of nodes successfully processed
	UnprocessedNodes  []types.EntityType // Part of or blocked by a cycle
	CycleParticipants []types.EntityType // Subset of UnprocessedNodes that forms the cycle
	CyclePath         []types.EntityType // e.g. [A, B, C, A]
}

// CycleError represents a cycle detection error with detailed information about
// which entity types are involved and which are blocked by the cycle.
type CycleError struct {
	Info *CycleInfo
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	msg := fmt.Sprintf("cycle detected in dependency graph: %d of %d entity types could not be ordered",
		len(e.Info.UnprocessedNodes), e.Info.TotalNodes)

	if len(e.Info.CyclePath) > 0 {
		msg += fmt.Sprintf("\nCycle path: %s", joinTypes(e.Info.CyclePath, " -> "))
	}

	if len(e.Info.CycleParticipants) > 0 {
		msg += fmt.Sprintf("\nEntity types in cycle: %s", joinTypes(e.Info.CycleParticipants, ", "))
	}

	if len(e.Info.UnprocessedNodes) > len(e.Info.CycleParticipants) {
		participantSet := make(map[types.EntityType]bool)
		for _, p := range e.Info.CycleParticipants {
			participantSet[p] = true
		}

		var blocked []types.EntityType
		for _, u := range e.Info.UnprocessedNodes {
			if !participantSet[u] {
				blocked = append(blocked, u)
			}
		}

		if len(blocked) > 0 {
			msg += fmt.Sprintf("\nEntity types blocked by cycle: %s", joinTypes(blocked, ", "))
		}
	}

	return msg
}

// Is lets errors.Is match ErrCycleDetected.
func (e *CycleError) Is(target error) bool {
	return target == ErrCycleDetected
}

func joinTypes(ts []types.EntityType, sep string) string {
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = string(t)
	}
	return strings.Join(parts, sep)
}

// DetectIncompleteProcessing runs Kahn's algorithm and returns information
// about any nodes that couldn't be processed, or nil when there is no cycle.
func (g *Graph) DetectIncompleteProcessing() *CycleInfo {
	inDegree := g.CalculateInDegrees()
	queue := g.initializeQueue(inDegree)

	processed := make(map[types.EntityType]bool)

	for !queue.isEmpty() {
		node, _ := queue.dequeue()
		processed[node] = true

		for _, child := range g.GetChildren(node) {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue.enqueue(child)
			}
		}
	}

	if len(processed) == g.NodeCount() {
		return nil
	}

	var unprocessed []types.EntityType
	unprocessedSet := make(map[types.EntityType]bool)
	for _, name := range g.AllNodes() {
		if !processed[name] {
			unprocessed = append(unprocessed, name)
			unprocessedSet[name] = true
		}
	}

	var cycleParticipants []types.EntityType
	for _, node := range unprocessed {
		if g.canReachSelf(node, unprocessedSet) {
			cycleParticipants = append(cycleParticipants, node)
		}
	}

	var cyclePath []types.EntityType
	if len(cycleParticipants) > 0 {
		cyclePath = g.FindCyclePath(cycleParticipants[0], unprocessedSet)
	}

	return &CycleInfo{
		TotalNodes:        g.NodeCount(),
		ProcessedNodes:    len(processed),
		UnprocessedNodes:  unprocessed,
		CycleParticipants: cycleParticipants,
		CyclePath:         cyclePath,
	}
}

// HasCycle returns true if the dependency graph contains a cycle.
func (g *Graph) HasCycle() bool {
	return g.DetectIncompleteProcessing() != nil
}

// FindCyclePath finds the path that forms a cycle starting from the given node.
// The start node appears at both ends.
func (g *Graph) FindCyclePath(start types.EntityType, allowedNodes map[types.EntityType]bool) []types.EntityType {
	visited := make(map[types.EntityType]bool)
	path := []types.EntityType{start}

	if g.dfsFindPath(start, start, visited, allowedNodes, &path) {
		return path
	}

	return nil
}

func (g *Graph) dfsFindPath(current, target types.EntityType, visited, allowedNodes map[types.EntityType]bool, path *[]types.EntityType) bool {
	for _, child := range g.GetChildren(current) {
		if !allowedNodes[child] {
			continue
		}

		if child == target {
			*path = append(*path, target)
			return true
		}

		if visited[child] {
			continue
		}

		visited[child] = true
		*path = append(*path, child)

		if g.dfsFindPath(child, target, visited, allowedNodes, path) {
			return true
		}

		// Backtrack
		*path = (*path)[:len(*path)-1]
	}

	return false
}

// canReachSelf checks if a node can reach itself through the subgraph
// defined by the allowedNodes set.
func (g *Graph) canReachSelf(start types.EntityType, allowedNodes map[types.EntityType]bool) bool {
	visited := make(map[types.EntityType]bool)
	return g.dfsCanReach(start, start, visited, allowedNodes, true)
}

func (g *Graph) dfsCanReach(current, target types.EntityType, visited, allowedNodes map[types.EntityType]bool, isStart bool) bool {
	if current == target && !isStart {
		return true
	}
	if visited[current] || !allowedNodes[current] {
		return false
	}

	visited[current] = true

	for _, child := range g.GetChildren(current) {
		if g.dfsCanReach(child, target, visited, allowedNodes, false) {
			return true
		}
	}

	return false
}

// TopologicalSort returns entity types in migration order using Kahn's
// algorithm. Ties are broken by insertion order.
func (g *Graph) TopologicalSort() ([]types.EntityType, error) {
	inDegree := g.CalculateInDegrees()
	queue := g.initializeQueue(inDegree)

	var result []types.EntityType

	for !queue.isEmpty() {
		node, _ := queue.dequeue()
		result = append(result, node)

		for _, child := range g.GetChildren(node) {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue.enqueue(child)
			}
		}
	}

	if len(result) != g.NodeCount() {
		return nil, &CycleError{Info: g.DetectIncompleteProcessing()}
	}

	return result, nil
}

// Stages groups entity types into levels: every type in stage n depends only
// on types in earlier stages, so the types of one stage may run concurrently.
func (g *Graph) Stages() ([][]types.EntityType, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}

	inDegree := g.CalculateInDegrees()
	var current []types.EntityType
	for _, name := range g.AllNodes() {
		if inDegree[name] == 0 {
			current = append(current, name)
		}
	}

	var stages [][]types.EntityType
	for len(current) > 0 {
		stages = append(stages, current)

		ready := make(map[types.EntityType]bool)
		for _, node := range current {
			for _, child := range g.GetChildren(node) {
				inDegree[child]--
				if inDegree[child] == 0 {
					ready[child] = true
				}
			}
		}

		var next []types.EntityType
		for _, name := range g.AllNodes() {
			if ready[name] {
				next = append(next, name)
			}
		}
		current = next
	}

	return stages, nil
}

// Validate checks the graph for cycles. Returns a CycleError if found.
func (g *Graph) Validate() error {
	if cycleInfo := g.DetectIncompleteProcessing(); cycleInfo != nil {
		return &CycleError{Info: cycleInfo}
	}
	return nil
}
