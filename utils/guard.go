package utils

// Guard runs a cleanup function on every exit path of a function unless Success was declared first.
// Typical use restores state that an operation changed temporarily:
//
//	guard := NewGuard(func() { model.SetUpdateVisualization(true) })
//	defer guard.OnFail()
//	if err != nil { return err }
//	guard.Success()
//	return nil
type Guard struct {
	OnFail  func()
	success bool
}

// NewGuard returns a Guard wrapping the given cleanup.
func NewGuard(onFailCleanup func()) *Guard {
	ret := &Guard{}
	ret.OnFail = func() {
		if !ret.success {
			onFailCleanup()
		}
	}
	return ret
}

// Success declares the function succeeded and the "failure" cleanup code does not need to be
// executed.
func (guard *Guard) Success() {
	guard.success = true
}
