package tool

import "reflect"

// RegisterFilesystemTools adds the file and search tools that don't need
// access to the coordinator (fork/kill/wait are registered separately by
// the coordinator package, which owns the live agent set).
func RegisterFilesystemTools(r *Registry) {
	r.Register("bash", "Execute a shell command and return its stdout, stderr, and exit status.", reflect.TypeOf(BashParams{}), RunBash)
	r.Register("file_read", "Read the full contents of a file.", reflect.TypeOf(FileReadParams{}), RunFileRead)
	r.Register("file_write", "Write content to a file, creating parent directories as needed.", reflect.TypeOf(FileWriteParams{}), RunFileWrite)
	r.Register("glob", "Find files under a root directory matching a doublestar glob pattern.", reflect.TypeOf(GlobParams{}), RunGlob)
	r.Register("grep", "Search files under a path for lines matching a regular expression.", reflect.TypeOf(GrepParams{}), RunGrep)
}
