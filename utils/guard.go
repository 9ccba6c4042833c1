package utils

// Guard runs a cleanup function on return unless the function it guards declared success. It
// releases resources acquired halfway through a constructor that then fails:
//
//	guard := NewGuard(func() { device.Close(ctx) })
//	defer guard.OnFail()
//	if err := configure(device); err != nil {
//		return nil, err
//	}
//	guard.Success()
//	return device, nil
type Guard struct {
	OnFail  func()
	success bool
}

// NewGuard returns a guard running onFailCleanup unless Success is called first.
func NewGuard(onFailCleanup func()) *Guard {
	ret := &Guard{}
	ret.OnFail = func() {
		if !ret.success {
			onFailCleanup()
		}
	}
	return ret
}

// Success disarms the cleanup.
func (guard *Guard) Success() {
	guard.success = true
}
