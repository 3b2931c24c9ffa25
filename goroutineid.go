package kvstore

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID extracts the calling goroutine's id from its stack trace
// header ("goroutine 123 [running]:"). The façade's thread-registration
// model (§4.5) is inherited from a C API where "thread" means an OS
// thread; goroutines are the closest Go analogue a caller can be expected
// to register/deregister around, so this id is what RegisterThread keys
// scratch buffers by. It is a diagnostic trick, not a stable public API:
// callers never see the numeric value.
func goroutineID() int64 {
	var buf [64]byte

	n := runtime.Stack(buf[:], false)
	line := buf[:n]

	const prefix = "goroutine "

	line = bytes.TrimPrefix(line, []byte(prefix))

	idx := bytes.IndexByte(line, ' ')
	if idx < 0 {
		return 0
	}

	id, err := strconv.ParseInt(string(line[:idx]), 10, 64)
	if err != nil {
		return 0
	}

	return id
}
