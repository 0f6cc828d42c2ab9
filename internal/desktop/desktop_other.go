//go:build !linux

package desktop

// applicationsDir has no equivalent outside Linux.
func applicationsDir() string {
	return ""
}

// Add is a no-op outside Linux.
func (i *Integrator) Add(e Entry) error {
	i.log.Debug("desktop integration not supported on this platform", "app", e.AppName)
	return nil
}

// Remove is a no-op outside Linux.
func (i *Integrator) Remove(app string) error {
	return nil
}
