//go:build !unix

package dirlock

import (
	"errors"
	"os"
)

var errUnsupported = errors.New("dirlock: advisory file locks unsupported on this platform")

func tryLockFile(*os.File) (bool, error) {
	return false, errUnsupported
}

func unlockFile(*os.File) error {
	return errUnsupported
}

func probeLocked(string) (bool, error) {
	return false, errUnsupported
}
