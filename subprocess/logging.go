package subprocess

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"

	"github.com/livepeer/clip-job-server/log"
)

func streamOutput(traceID, stream string, src io.Reader) {
	s := bufio.NewReader(src)
	for {
		var line []byte
		line, err := s.ReadSlice('\n')
		if err == io.EOF && len(line) == 0 {
			break
		}
		if err == io.EOF {
			log.LogDebug(traceID, "subprocess output improperly terminated", "stream", stream, "line", string(line))
			return
		}
		if err != nil {
			log.LogWarn(traceID, "subprocess output read error", "stream", stream, "err", err.Error())
			return
		}
		log.LogDebug(traceID, "subprocess output", "stream", stream, "line", string(line))
	}
}

func LogStdout(traceID string, cmd *exec.Cmd) error {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open stdout pipe: %v", err)
	}
	go streamOutput(traceID, "stdout", stdoutPipe)
	return nil
}

func LogStderr(traceID string, cmd *exec.Cmd) error {
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to open stderr pipe: %v", err)
	}
	go streamOutput(traceID, "stderr", stderrPipe)
	return nil
}

// LogOutputs starts goroutines that stream cmd's stdout & stderr into the
// structured logger under traceID, instead of letting subprocess chatter hit
// the server's own stdout unstructured.
func LogOutputs(traceID string, cmd *exec.Cmd) error {
	if err := LogStderr(traceID, cmd); err != nil {
		return err
	}
	if err := LogStdout(traceID, cmd); err != nil {
		return err
	}
	return nil
}
