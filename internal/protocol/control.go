package protocol

import (
	"encoding/json"
	"fmt"
)

// Control message types recognized on the text channel.
const (
	CmdListCams  = "list_cams"
	CmdSetCam    = "set_cam"
	CmdGetParams = "get_params"
	CmdSetParams = "set_params"
)

// Command is one inbound control message. Absent optional fields stay
// nil so partial set_params updates are distinguishable from zeroes.
type Command struct {
	Type      string   `json:"type"`
	Index     *int     `json:"index,omitempty"`
	EMAAlpha  *float64 `json:"ema_alpha,omitempty"`
	ClampNear *float64 `json:"clamp_near,omitempty"`
	ClampFar  *float64 `json:"clamp_far,omitempty"`
}

// ParseCommand decodes an inbound control message. Malformed JSON or a
// missing type comes back as an error; callers ignore those messages
// rather than failing the session.
func ParseCommand(payload []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return Command{}, fmt.Errorf("parse control message: %w", err)
	}
	if cmd.Type == "" {
		return Command{}, fmt.Errorf("control message missing type")
	}
	return cmd, nil
}
