package popup

import "github.com/annolab/webmark/internal/model"

// State is one rendered snapshot of the popup. Every field comes from
// queries issued at render time; nothing is carried over from the
// previous snapshot.
type State struct {
	// LoggedIn reports the coordinator's login view.
	LoggedIn bool

	// Task is the active-task snapshot, including the sentinel states.
	Task model.TaskSession

	// Question is the active task's prompt, empty when none is active.
	Question string
}

// CanStart reports whether the start-task control is enabled: logged
// in, no task running, and the service reachable. The unreachable
// sentinel disables everything; the popup must not offer actions it
// cannot re-validate.
func (s State) CanStart() bool {
	return s.LoggedIn && s.Task.Status() == model.TaskStatusNone
}

// CanEnd reports whether the end-task control is enabled.
func (s State) CanEnd() bool {
	return s.LoggedIn && s.Task.Active()
}

// CanCancel reports whether the cancel-task control is enabled. Cancel
// and end are enabled together; they differ in what happens to the
// work.
func (s State) CanCancel() bool {
	return s.CanEnd()
}

// View renders popup state. The host environment implements it; tests
// record the snapshots.
type View interface {
	Render(state State)
}

// Alerter surfaces a user-visible failure message. Popup actions are
// user-initiated, so unlike the page tracker their failures are shown,
// not swallowed.
type Alerter interface {
	Alert(message string)
}

// Navigator performs browser-tab actions for the popup.
type Navigator interface {
	// OpenTab opens url in a new tab.
	OpenTab(url string) error

	// ActiveTab identifies the currently focused tab, if any.
	ActiveTab() (tabID int, ok bool)

	// NavigateActiveTab points the focused tab at url.
	NavigateActiveTab(url string) error
}
