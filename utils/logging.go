package utils

import (
	"os"

	logging "github.com/op/go-logging"
)

var log = logging.MustGetLogger("utils")

var format = logging.MustStringFormatter(
	`%{color}%{time:15:04:05} %{shortfunc} | %{level:.6s} %{color:reset} %{message}`,
)

// Backend is the default stderr output
var Backend = logging.NewLogBackend(os.Stderr, "", 0)

// BackendFormatter contains the fancy debug formatter
var BackendFormatter = logging.NewBackendFormatter(Backend, format)

// InitLogging installs the shared formatter for every package logger. Debug
// lines are only emitted when debug is set.
func InitLogging(debug bool) {
	leveled := logging.AddModuleLevel(BackendFormatter)
	if debug {
		leveled.SetLevel(logging.DEBUG, "")
	} else {
		leveled.SetLevel(logging.INFO, "")
	}
	logging.SetBackend(leveled)
}
