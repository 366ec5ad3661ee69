package process

import (
	"os/exec"
	"strings"
)

var execLookPath = exec.LookPath

// CheckCommand resolves program on PATH without running it.
func CheckCommand(program, desc string) (string, error) {
	path, err := execLookPath(program)
	if err != nil {
		return "", &NoCommandError{Program: program, Desc: desc, Err: err}
	}
	return path, nil
}

func commandLine(program string, args []string) string {
	if len(args) == 0 {
		return program
	}
	return program + " " + strings.Join(args, " ")
}
