package util

import (
	"github.com/rodolfoag/gow32"
)

// CreateMutex creates a global named mutex to enforce a single running
// instance. Relying on the OS to release it on program exit.
func CreateMutex(name string) error {
	_, err := gow32.CreateMutex("Global//" + name)
	return err
}
