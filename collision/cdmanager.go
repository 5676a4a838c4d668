package collision

import (
	"go.viam.com/motionkit/logging"
	"go.viam.com/motionkit/model"
)

// pairEntry lists the sets one registered set is checked against.
type pairEntry struct {
	set    *model.LinkSet
	others []*model.LinkSet
}

// CDManager keeps the link sets of one planning problem and the pairs that have to be checked between them.
// It is populated once and then queried from a single goroutine.
//
// Queries on missing data never panic: boolean queries report false and distance queries report -1.
type CDManager struct {
	checker Checker
	logger  logging.Logger

	models    []*model.LinkSet
	pairs     []*pairEntry
	pairIndex map[*model.LinkSet]*pairEntry
}

// NewCDManager returns a manager bound to checker.
func NewCDManager(checker Checker, logger logging.Logger) *CDManager {
	return &CDManager{
		checker:   checker,
		logger:    logger,
		pairIndex: map[*model.LinkSet]*pairEntry{},
	}
}

// Checker returns the checker queries are delegated to.
func (cdm *CDManager) Checker() Checker {
	return cdm.checker
}

// AddCollisionModel registers set and pairs it with every model registered before it.
func (cdm *CDManager) AddCollisionModel(set *model.LinkSet) {
	if set == nil {
		return
	}
	if cdm.checker != nil && set.CollisionChecker() != model.CollisionContext(cdm.checker) {
		cdm.logger.Warnw("link set is bound to a different collision checker instance",
			"set", set.Name(), "manager_checker", cdm.checker.Name())
	}
	for _, existing := range cdm.models {
		if existing != set {
			cdm.AddCollisionModelPair(existing, set)
		}
	}
	if !cdm.hasEquivalentSet(set) {
		cdm.models = append(cdm.models, set)
	}
}

// AddCollisionModelLink registers a single link of m as its own set.
func (cdm *CDManager) AddCollisionModelLink(m *model.Model, link model.NodeID) error {
	set, err := model.NewLinkSet(m, m.NodeName(link), []string{m.NodeName(link)}, "", "")
	if err != nil {
		return err
	}
	cdm.AddCollisionModel(set)
	return nil
}

// AddCollisionModelPair registers a and b and restricts checks to a against b.
func (cdm *CDManager) AddCollisionModelPair(a, b *model.LinkSet) {
	if a == nil || b == nil {
		return
	}
	if !cdm.hasEquivalentSet(a) {
		cdm.models = append(cdm.models, a)
	}
	if !cdm.hasEquivalentSet(b) {
		cdm.models = append(cdm.models, b)
	}
	entry, ok := cdm.pairIndex[a]
	if !ok {
		entry = &pairEntry{set: a}
		cdm.pairIndex[a] = entry
		cdm.pairs = append(cdm.pairs, entry)
	}
	entry.others = append(entry.others, b)
}

// hasEquivalentSet reports whether set, or a single node set wrapping the same node, is registered.
func (cdm *CDManager) hasEquivalentSet(set *model.LinkSet) bool {
	for _, m := range cdm.models {
		if m == set {
			return true
		}
		if set.Size() == 1 && m.Size() == 1 && m.Model() == set.Model() && m.Node(0) == set.Node(0) {
			return true
		}
	}
	return false
}

// HasLinkSet reports whether set itself is registered.
func (cdm *CDManager) HasLinkSet(set *model.LinkSet) bool {
	for _, m := range cdm.models {
		if m == set {
			return true
		}
	}
	return false
}

// HasNode reports whether a single node set wrapping the given link is registered.
func (cdm *CDManager) HasNode(m *model.Model, link model.NodeID) bool {
	for _, set := range cdm.models {
		if set.Size() == 1 && set.Model() == m && set.Node(0) == link {
			return true
		}
	}
	return false
}

// LinkSets returns the registered sets in registration order.
func (cdm *CDManager) LinkSets() []*model.LinkSet {
	return append([]*model.LinkSet(nil), cdm.models...)
}

// NumPairs returns the number of registered pairs.
func (cdm *CDManager) NumPairs() int {
	n := 0
	for _, p := range cdm.pairs {
		n += len(p.others)
	}
	return n
}

// IsInCollision reports whether any registered pair collides.
func (cdm *CDManager) IsInCollision() bool {
	if cdm.checker == nil {
		return false
	}
	for _, p := range cdm.pairs {
		for _, other := range p.others {
			if cdm.checker.CheckCollision(p.set, other) {
				return true
			}
		}
	}
	return false
}

// IsInCollisionWith tests set against every other registered model, ignoring the pair restrictions.
func (cdm *CDManager) IsInCollisionWith(set *model.LinkSet) bool {
	if set == nil || cdm.checker == nil {
		cdm.logger.Warn("collision query with missing link set or checker")
		return false
	}
	for _, m := range cdm.models {
		if m != set && cdm.checker.CheckCollision(m, set) {
			return true
		}
	}
	return false
}

// Distance returns the minimum distance over all registered pairs, MaxDistance without pairs and -1 without
// a checker.
func (cdm *CDManager) Distance() float64 {
	return cdm.ClosestPoints().Distance
}

// DistanceTo returns the minimum distance between set and every other registered model.
func (cdm *CDManager) DistanceTo(set *model.LinkSet) float64 {
	return cdm.ClosestPointsTo(set).Distance
}

// ClosestPoints is Distance with the witness points and triangle ids of the minimizing pair. Ties keep the
// pair registered first.
func (cdm *CDManager) ClosestPoints() DistanceResult {
	if cdm.checker == nil {
		return DistanceResult{Distance: -1}
	}
	best := DistanceResult{Distance: MaxDistance}
	for _, p := range cdm.pairs {
		for _, other := range p.others {
			if res := cdm.checker.CalculateDistance(p.set, other); res.Distance < best.Distance {
				best = res
			}
		}
	}
	return best
}

// ClosestPointsTo is DistanceTo with the witness points and triangle ids. P1 lies on set.
func (cdm *CDManager) ClosestPointsTo(set *model.LinkSet) DistanceResult {
	if set == nil || cdm.checker == nil {
		cdm.logger.Warn("distance query with missing link set or checker")
		return DistanceResult{Distance: -1}
	}
	best := DistanceResult{Distance: MaxDistance}
	for _, m := range cdm.models {
		if m == set {
			continue
		}
		if res := cdm.checker.CalculateDistance(set, m); res.Distance < best.Distance {
			best = res
		}
	}
	return best
}
