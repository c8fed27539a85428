// Package liblaunch binds launch.Native to the launch_data API of macOS
// liblaunch through cgo. Other platforms get a stub whose Open reports
// ErrUnavailable.
package liblaunch

import "errors"

// Name labels metrics and logs for this native.
const Name = "liblaunch"

var ErrUnavailable = errors.New("liblaunch: requires darwin with cgo")
