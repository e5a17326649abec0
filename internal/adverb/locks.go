//go:build linux

package adverb

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// LockRequest is one --lock-file request.
type LockRequest struct {
	Path     string
	Create   bool
	Wait     bool
	Exclusive bool
}

// Lock is a held advisory lock; its file descriptor must stay open for the
// life of the Adverb.
type Lock struct {
	file *os.File
}

// FD returns the lock's underlying file descriptor, so it can be carried
// through into the guest's fd table with close-on-exec cleared.
func (l Lock) FD() int {
	return int(l.file.Fd())
}

// FDs returns the fd of every held lock, in order.
func FDs(locks []Lock) []int {
	fds := make([]int, len(locks))
	for i, l := range locks {
		fds[i] = l.FD()
	}

	return fds
}

// AcquireLocks opens and locks each request in order, returning the held
// locks. On failure it releases everything already acquired.
func AcquireLocks(reqs []LockRequest) ([]Lock, error) {
	locks := make([]Lock, 0, len(reqs))

	for _, req := range reqs {
		lock, err := acquireOne(req)
		if err != nil {
			ReleaseLocks(locks)
			return nil, fmt.Errorf("acquiring lock on %s: %w", req.Path, err)
		}

		locks = append(locks, lock)
	}

	return locks, nil
}

func acquireOne(req LockRequest) (Lock, error) {
	flags := os.O_RDWR
	if req.Create {
		flags |= os.O_CREATE
	}

	f, err := os.OpenFile(req.Path, flags, 0o644)
	if err != nil {
		return Lock{}, err
	}

	lk := unix.Flock_t{Type: unix.F_RDLCK}
	if req.Exclusive {
		lk.Type = unix.F_WRLCK
	}

	cmd := unix.F_OFD_SETLK
	if req.Wait {
		cmd = unix.F_OFD_SETLKW
	}

	if err := unix.FcntlFlock(f.Fd(), cmd, &lk); err != nil {
		_ = f.Close()
		return Lock{}, err
	}

	return Lock{file: f}, nil
}

// ReleaseLocks closes every lock's underlying fd, releasing the advisory
// lock as a side effect.
func ReleaseLocks(locks []Lock) {
	for _, l := range locks {
		if l.file != nil {
			_ = l.file.Close()
		}
	}
}
