// Package workdir runs code inside a throwaway temporary directory that is
// also the process working directory, restoring the previous directory on
// every exit path.
//
// The working directory is process-global state. Enter holds a package lock
// until Close, so guarded sections from different goroutines queue instead of
// racing. Guarded sections must not nest. Code running concurrently with a
// guarded section sees the temporary directory as its working directory, so
// it must only use absolute paths.
package workdir

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

var (
	mu sync.Mutex

	// seams for tests
	getwd     = os.Getwd
	chdir     = os.Chdir
	mkdirTmp  = os.MkdirTemp
	removeAll = os.RemoveAll
)

// Dir is an entered temporary working directory.
type Dir struct {
	path     string
	previous string
	once     sync.Once
	closeErr error
}

// Enter creates a temporary directory named with prefix and makes it the
// working directory. The caller must Close the returned Dir.
func Enter(prefix string) (*Dir, error) {
	mu.Lock()
	previous, err := getwd()
	if err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("get working directory: %w", err)
	}
	path, err := mkdirTmp("", prefix)
	if err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	if err := chdir(path); err != nil {
		_ = removeAll(path)
		mu.Unlock()
		return nil, fmt.Errorf("enter temp dir: %w", err)
	}
	return &Dir{path: path, previous: previous}, nil
}

// Path is the absolute path of the temporary directory.
func (d *Dir) Path() string { return d.path }

// Previous is the working directory that Close restores.
func (d *Dir) Previous() string { return d.previous }

// Close restores the previous working directory, removes the temporary
// directory and releases the lock. Repeated calls return the first result.
func (d *Dir) Close() error {
	d.once.Do(func() {
		defer mu.Unlock()
		var errs []error
		if err := chdir(d.previous); err != nil {
			errs = append(errs, fmt.Errorf("restore working directory: %w", err))
		}
		if err := removeAll(d.path); err != nil {
			errs = append(errs, fmt.Errorf("remove temp dir: %w", err))
		}
		d.closeErr = errors.Join(errs...)
	})
	return d.closeErr
}

// Run enters a temporary directory, calls fn with its path and closes it.
// fn's error takes precedence over a Close error.
func Run(prefix string, fn func(dir string) error) (err error) {
	d, err := Enter(prefix)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := d.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(d.path)
}
