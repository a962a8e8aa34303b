package main

import (
	"errors"
	"fmt"
	"strings"
)

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdRecord
	cmdStopRecord
	cmdStatus
	cmdQuit
	cmdHelp
)

type command struct {
	kind   commandKind
	source string
}

var errUnknownCommand = errors.New("unknown command")

const commandHelp = `commands:
  camera           start streaming the camera source
  file             start streaming the file source
  start <source>   start streaming any source
  stop             stop the current session
  record           start recording the current stream
  stop-record      stop recording and save the file
  status           show session and recording state
  quit             exit
`

// parseCommand reads one line typed on stdin. Blank lines yield ok=false.
func parseCommand(line string) (cmd command, ok bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, false, nil
	}

	switch strings.ToLower(fields[0]) {
	case "camera", "file":
		return command{kind: cmdStart, source: strings.ToLower(fields[0])}, true, nil
	case "start":
		if len(fields) != 2 {
			return command{}, false, errors.New("usage: start <source>")
		}
		return command{kind: cmdStart, source: fields[1]}, true, nil
	case "stop":
		return command{kind: cmdStop}, true, nil
	case "record":
		return command{kind: cmdRecord}, true, nil
	case "stop-record":
		return command{kind: cmdStopRecord}, true, nil
	case "status":
		return command{kind: cmdStatus}, true, nil
	case "quit", "exit":
		return command{kind: cmdQuit}, true, nil
	case "help", "?":
		return command{kind: cmdHelp}, true, nil
	}
	return command{}, false, fmt.Errorf("%w: %q", errUnknownCommand, fields[0])
}
