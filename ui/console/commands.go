package console

import (
	"strings"

	"github.com/chzyer/readline"
	"github.com/nvr-ai/visiondrop/models"
)

// Command names.
const (
	CmdOpen   = "open"
	CmdModel  = "model"
	CmdSpeak  = "speak"
	CmdClear  = "clear"
	CmdStatus = "status"
	CmdHelp   = "help"
	CmdQuit   = "quit"
	CmdExit   = "exit"
)

var commandNames = map[string]bool{
	CmdOpen: true, CmdModel: true, CmdSpeak: true, CmdClear: true,
	CmdStatus: true, CmdHelp: true, CmdQuit: true, CmdExit: true,
}

const helpText = `Drop an image file onto the terminal, or use:
  open [N|PATH]   list images in the current directory, or open one
  model [NAME]    show the active model, or switch to NAME
  speak           read the top results aloud
  clear           clear the image and results
  status          show the current state
  help            show this help
  quit, exit      leave`

// Command is one parsed input line.
type Command struct {
	// Name is the command, or empty for a drop payload.
	Name string
	// Arg is the rest of the line.
	Arg string
}

// IsDrop reports whether the line was not a command.
func (c Command) IsDrop() bool {
	return c.Name == ""
}

// ParseCommand splits a line into a command and its argument. Lines that do
// not start with a known command are drop payloads and keep their text in Arg,
// as are lines naming an existing file such as "model photo.jpg". A bare
// command word is always a command.
func ParseCommand(line string) Command {
	line = strings.TrimSpace(line)
	name, arg, found := strings.Cut(line, " ")
	name = strings.ToLower(name)
	if !commandNames[name] || (found && isRegularFile(line)) {
		return Command{Arg: line}
	}
	return Command{Name: name, Arg: strings.TrimSpace(arg)}
}

// NewCompleter offers command names, model names and picker entries.
//
// Arguments:
//   - entries: Returns the current picker entry names.
func NewCompleter(entries func() []string) *readline.PrefixCompleter {
	modelItems := make([]readline.PrefixCompleterInterface, 0)
	for _, name := range models.Names() {
		modelItems = append(modelItems, readline.PcItem(name))
	}
	return readline.NewPrefixCompleter(
		readline.PcItem(CmdOpen, readline.PcItemDynamic(func(string) []string { return entries() })),
		readline.PcItem(CmdModel, modelItems...),
		readline.PcItem(CmdSpeak),
		readline.PcItem(CmdClear),
		readline.PcItem(CmdStatus),
		readline.PcItem(CmdHelp),
		readline.PcItem(CmdQuit),
		readline.PcItem(CmdExit),
	)
}
