//go:build windows || no_cgo

package ik

import "github.com/pkg/errors"

func newLocalOptimizer(optimizerSettings, objectiveFunc, []objectiveFunc, []objectiveFunc) (localOptimizer, error) {
	return nil, errors.New("nlopt is not supported on this build")
}
