// Package viz holds the visualization collaborators: a pose recorder standing in for a scene graph, RRT tree
// rendering to SVG and joint trajectory plots.
package viz

import (
	"sync"

	"go.viam.com/motionkit/spatialmath"
)

// PoseRecorder keeps the latest pose of every node it was notified about.
type PoseRecorder struct {
	mu      sync.Mutex
	poses   map[string]map[string]spatialmath.Pose
	updates int
}

// NewPoseRecorder returns an empty recorder.
func NewPoseRecorder() *PoseRecorder {
	return &PoseRecorder{poses: map[string]map[string]spatialmath.Pose{}}
}

// PoseChanged records a pose notification.
func (r *PoseRecorder) PoseChanged(modelName, nodeName string, pose spatialmath.Pose) {
	r.mu.Lock()
	defer r.mu.Unlock()
	nodes, ok := r.poses[modelName]
	if !ok {
		nodes = map[string]spatialmath.Pose{}
		r.poses[modelName] = nodes
	}
	nodes[nodeName] = pose
	r.updates++
}

// Pose returns the last recorded pose of a node.
func (r *PoseRecorder) Pose(modelName, nodeName string) (spatialmath.Pose, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.poses[modelName][nodeName]
	return p, ok
}

// Updates returns the number of notifications received.
func (r *PoseRecorder) Updates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates
}

// Reset forgets everything.
func (r *PoseRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.poses = map[string]map[string]spatialmath.Pose{}
	r.updates = 0
}
