package domain

var statusSuccessors = map[AnimalStatus][]AnimalStatus{
	AnimalActive:       {AnimalBreeding, AnimalInExperiment, AnimalRetired, AnimalDead},
	AnimalBreeding:     {AnimalActive, AnimalRetired, AnimalDead},
	AnimalInExperiment: {AnimalActive, AnimalRetired, AnimalDead},
	AnimalRetired:      {AnimalDead},
	AnimalDead:         {},
}

// CanTransition reports whether an animal may move from one status to another.
// A self-transition is always permitted and callers treat it as a no-op.
func CanTransition(from, to AnimalStatus) bool {
	if from == to {
		return true
	}
	for _, next := range statusSuccessors[from] {
		if next == to {
			return true
		}
	}
	return false
}
