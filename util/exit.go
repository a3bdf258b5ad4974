package util

import "os"

const (
	ExitCodeStartFailed = 1
)

// OsExit is swappable in tests.
var OsExit = os.Exit
