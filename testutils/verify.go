package testutils

import (
	"go.uber.org/goleak"
)

// VerifyTestMain runs the tests of a package and fails if goroutines outlive them. Packages starting planner
// tasks or worker pools use it as their TestMain.
func VerifyTestMain(m goleak.TestingM) {
	goleak.VerifyTestMain(m)
}
