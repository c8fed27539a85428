//go:build !darwin || !cgo

package liblaunch

import "github.com/danmuck/launchkit/internal/launch"

// Open reports ErrUnavailable off darwin or without cgo.
func Open() (launch.Native, error) {
	return nil, ErrUnavailable
}
