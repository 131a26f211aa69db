package protocol

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// ExtensionSource marks messages sent by the monitor side.
const ExtensionSource = "@devtools-extension"

// CommandType discriminates inbound monitor commands.
type CommandType string

const (
	CommandDispatch CommandType = "DISPATCH"
	CommandAction   CommandType = "ACTION"
	CommandImport   CommandType = "IMPORT"
	CommandExport   CommandType = "EXPORT"
	CommandUpdate   CommandType = "UPDATE"
	CommandStart    CommandType = "START"
	CommandStop     CommandType = "STOP"
)

var validCommands = map[CommandType]bool{
	CommandDispatch: true,
	CommandAction:   true,
	CommandImport:   true,
	CommandExport:   true,
	CommandUpdate:   true,
	CommandStart:    true,
	CommandStop:     true,
}

// Command is a message from the monitor to one bridged instance.
type Command struct {
	Type       CommandType     `json:"type"`
	Source     string          `json:"source"`
	InstanceID int             `json:"instanceId"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	State      string          `json:"state,omitempty"`
	Action     string          `json:"action,omitempty"`
	Failed     bool            `json:"failed,omitempty"`
}

// DecodeCommand parses and validates an inbound command.
func DecodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	if cmd.Source != ExtensionSource {
		return Command{}, fmt.Errorf("decode command: source %q: %w", cmd.Source, ErrForeignSource)
	}
	if !validCommands[cmd.Type] {
		return Command{}, fmt.Errorf("decode command: type %q: %w", cmd.Type, ErrUnknownTag)
	}
	return cmd, nil
}
