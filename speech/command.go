package speech

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"
)

// TextPlaceholder marks where the utterance goes in a configured command. A
// command without it receives the text as its last argument.
const TextPlaceholder = "{text}"

// StdinPlaceholder as an argument sends the utterance on standard input
// instead of the command line. The placeholder itself is not passed on.
const StdinPlaceholder = "{stdin}"

const sapiScript = "Add-Type -AssemblyName System.Speech; " +
	"(New-Object System.Speech.Synthesis.SpeechSynthesizer).Speak([Console]::In.ReadToEnd())"

// candidate is a speech command tried during detection.
type candidate struct {
	binary string
	args   []string
}

// candidates returns the system speech commands for goos in preference order.
func candidates(goos string) []candidate {
	switch goos {
	case "darwin":
		return []candidate{{binary: "say"}}
	case "windows":
		return []candidate{
			{binary: "powershell", args: []string{"-NoProfile", "-NonInteractive", "-Command", sapiScript, StdinPlaceholder}},
		}
	default:
		return []candidate{
			{binary: "espeak-ng"},
			{binary: "espeak"},
			{binary: "spd-say", args: []string{"--wait"}},
			{binary: "say"},
		}
	}
}

// DetectCommand returns the first system speech command found on PATH.
//
// Returns:
//   - []string: The command and its fixed arguments.
//   - error: An error wrapping ErrSpeech if no engine is installed.
func DetectCommand() ([]string, error) {
	var tried []string
	for _, c := range candidates(runtime.GOOS) {
		path, err := exec.LookPath(c.binary)
		if err != nil {
			tried = append(tried, c.binary)
			continue
		}
		return append([]string{path}, c.args...), nil
	}
	return nil, fmt.Errorf("%w: no speech command found (tried %s)", ErrSpeech, strings.Join(tried, ", "))
}

// CommandEngine speaks by running a system command once per utterance.
type CommandEngine struct {
	argv []string
	run  func(ctx context.Context, argv []string, stdin string) error

	mu    sync.Mutex
	queue []string
}

// NewCommandEngine creates an engine from a shell style command line. An empty
// command auto-detects the platform speech command.
//
// Arguments:
//   - command: e.g. `espeak-ng -s 150` or `say -v Samantha {text}`.
//
// Returns:
//   - *CommandEngine: The engine.
//   - error: An error wrapping ErrSpeech if the command is unusable.
//
// Example:
//
// ```go
//
//	engine, err := NewCommandEngine("espeak-ng -s 150")
//	if err != nil {
//	    log.Warnf("speech disabled: %v", err)
//	}
//
// ```
func NewCommandEngine(command string) (*CommandEngine, error) {
	var argv []string
	if strings.TrimSpace(command) == "" {
		detected, err := DetectCommand()
		if err != nil {
			return nil, err
		}
		argv = detected
	} else {
		parsed, err := shellwords.Parse(command)
		if err != nil {
			return nil, fmt.Errorf("%w: parse speech command: %v", ErrSpeech, err)
		}
		if len(parsed) == 0 {
			return nil, fmt.Errorf("%w: empty speech command", ErrSpeech)
		}
		path, err := exec.LookPath(parsed[0])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSpeech, err)
		}
		argv = append([]string{path}, parsed[1:]...)
	}
	return &CommandEngine{argv: argv, run: runCommand}, nil
}

// Name returns the base name of the speech binary.
func (e *CommandEngine) Name() string {
	name := e.argv[0]
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// Say queues text for the next RunAndWait.
func (e *CommandEngine) Say(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.queue = append(e.queue, text)
}

// RunAndWait runs the command for each queued utterance in order.
func (e *CommandEngine) RunAndWait(ctx context.Context) error {
	e.mu.Lock()
	queue := e.queue
	e.queue = nil
	e.mu.Unlock()

	for _, text := range queue {
		argv, stdin := e.commandFor(text)
		if err := e.run(ctx, argv, stdin); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("%w: %s: %v", ErrSpeech, e.Name(), err)
		}
	}
	return nil
}

// commandFor substitutes text into the command line.
func (e *CommandEngine) commandFor(text string) ([]string, string) {
	argv := make([]string, 0, len(e.argv)+1)
	placed := false
	stdin := ""
	for _, arg := range e.argv {
		switch {
		case arg == StdinPlaceholder:
			stdin = text
			placed = true
		case strings.Contains(arg, TextPlaceholder):
			argv = append(argv, strings.ReplaceAll(arg, TextPlaceholder, text))
			placed = true
		default:
			argv = append(argv, arg)
		}
	}
	if !placed {
		argv = append(argv, text)
	}
	return argv, stdin
}

func runCommand(ctx context.Context, argv []string, stdin string) error {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("%v: %s", err, msg)
		}
		return err
	}
	return nil
}
