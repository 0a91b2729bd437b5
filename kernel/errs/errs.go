// Package errs holds the kernel's numeric error taxonomy.
//
// The kernel itself never uses the stdlib error-wrapping idiom internally:
// every syscall path returns a signed Err_t the way the original C kernel
// returns a negative errno. Err_t implements the error interface so
// host-side code (cmd/kernelsim, tests) can still use %w and errors.Is.
package errs

import "fmt"

// Err_t is a kernel result code. Zero means success; negative values name
// a failure from the taxonomy below.
type Err_t int

// Taxonomy matches the original kernel's error.h numbering.
const (
	OK            Err_t = 0
	UndefinedErr  Err_t = -1
	HandleErr     Err_t = -9
	PrivilegeErr  Err_t = -10
	ParamErr      Err_t = -11
	ResourceErr   Err_t = -12
	MemoryErr     Err_t = -13
	MessageErr    Err_t = -14
	ConnectionErr Err_t = -15
	AlarmErr      Err_t = -16
)

var names = map[Err_t]string{
	OK:            "ok",
	UndefinedErr:  "undefined error",
	HandleErr:     "invalid or unowned handle",
	PrivilegeErr:  "privilege error",
	ParamErr:      "invalid parameter",
	ResourceErr:   "resource exhausted",
	MemoryErr:     "memory error",
	MessageErr:    "message error",
	ConnectionErr: "peer endpoint closed",
	AlarmErr:      "alarm/timeout error",
}

// Error implements the error interface so Err_t can be returned as a plain
// Go error from host-facing wrappers without losing the numeric code.
func (e Err_t) Error() string {
	if s, ok := names[e]; ok {
		return s
	}
	return fmt.Sprintf("errs: unknown code %d", int(e))
}

// Ok reports whether e represents success.
func (e Err_t) Ok() bool { return e == OK }

// ExitStatus values returned by Exit/Join, matching EXIT_SUCCESS..EXIT_KILLED.
type ExitStatus int

const (
	ExitSuccess ExitStatus = 0
	ExitFailure ExitStatus = 1
	ExitFatal   ExitStatus = 2
	ExitKilled  ExitStatus = 3
)
