package integration

import "testing"

// Given runs setup to build a server context, then the test body, and
// shuts the server down afterwards.
func Given(name string, t *testing.T, setup func(*testing.T) *LSPTestContext, test func(*testing.T, *LSPTestContext)) bool {
	return t.Run("given "+name, func(t *testing.T) {
		tc := setup(t)
		defer tc.Shutdown()
		test(t, tc)
	})
}

// Then wraps t.Run with a "then " prefix for descriptive test output
func Then(name string, t *testing.T, fn func(*testing.T)) bool {
	return t.Run("then "+name, fn)
}

// And continues a Then with another named assertion block.
func And(name string, t *testing.T, fn func(*testing.T)) bool {
	return t.Run("and "+name, fn)
}
