package buffer

import "golang.org/x/sys/unix"

// readv wraps the readv(2) syscall via golang.org/x/sys/unix so ReadFD
// can fill two discontiguous segments (the buffer tail and the spill
// scratch) in a single syscall.
func readv(fd int, iov [][]byte) (int, error) {
	n, err := unix.Readv(fd, iov)
	return n, err
}
