package risk

import (
	"context"
	"strings"
)

// StaticOracle answers from a fixed table. Used for tests and offline runs;
// unknown tokens are safe.
type StaticOracle struct {
	levels map[string]Level
	err    error
}

// NewStaticOracle creates an oracle answering from the given token→level map.
// Keys are matched case-insensitively.
func NewStaticOracle(levels map[string]Level) *StaticOracle {
	normalized := make(map[string]Level, len(levels))
	for token, level := range levels {
		normalized[strings.ToLower(token)] = level
	}
	return &StaticOracle{levels: normalized}
}

// NewFailingOracle creates an oracle that always returns err. Used to test
// unavailability policy.
func NewFailingOracle(err error) *StaticOracle {
	return &StaticOracle{err: err}
}

func (o *StaticOracle) Assess(ctx context.Context, token, chain string) (*Assessment, error) {
	if o.err != nil {
		return nil, o.err
	}
	level, ok := o.levels[strings.ToLower(token)]
	if !ok {
		level = LevelSafe
	}
	return &Assessment{Token: token, Chain: chain, Level: level}, nil
}
