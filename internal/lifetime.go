package dbgmodel

// LifetimeFlag is the shared weak link between a native instance and every
// adapter that retains a back-reference to it. It starts live and is cleared
// exactly once at binding teardown, never reset. Reads and the single write
// happen on the one cooperative thread shared with the host, so there is no
// locking here.
type LifetimeFlag struct {
	dead bool
}

// NewLifetimeFlag returns a live flag.
func NewLifetimeFlag() *LifetimeFlag {
	return &LifetimeFlag{}
}

func newLifetimeFlag() *LifetimeFlag {
	return NewLifetimeFlag()
}

// Alive reports whether the native instance may still be dereferenced.
func (f *LifetimeFlag) Alive() bool {
	return f != nil && !f.dead
}

// Clear marks the native instance as torn down. Adapters holding the flag
// keep working as handles but refuse every native dereference from now on.
func (f *LifetimeFlag) Clear() {
	f.dead = true
}

func (f *LifetimeFlag) clear() {
	f.Clear()
}

// lifetimeGuard is captured by every closure the binding layer hands to the
// host. The contract is that check runs immediately before each native
// dereference, not only at adapter construction; the native instance may be
// torn down while the adapter is still reachable from the host.
type lifetimeGuard struct {
	flag *LifetimeFlag
	name string
}

func (g lifetimeGuard) check() error {
	// A guard without a flag protects nothing, e.g. a free function.
	if g.flag == nil {
		return nil
	}
	if !g.flag.Alive() {
		return detachedObject("%s used after its native instance was torn down", g.name)
	}
	return nil
}
