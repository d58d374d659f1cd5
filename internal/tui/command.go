package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Command represents a parsed command.
type Command struct {
	Name string
	Args string
}

// ParseCommand parses a command string (without the leading ':').
func ParseCommand(input string) Command {
	input = strings.TrimSpace(input)
	parts := strings.SplitN(input, " ", 2)
	cmd := Command{Name: strings.ToLower(parts[0])}
	if len(parts) > 1 {
		cmd.Args = strings.TrimSpace(parts[1])
	}
	return cmd
}

// UserID parses the single user id argument of :direct.
func (c Command) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Args, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("usage: :%s <user-id>", c.Name)
	}
	return id, nil
}

// Group parses ":group <id>[,<id>...] [name]". The name may contain spaces.
func (c Command) Group() (memberIDs []int64, name string, err error) {
	if c.Args == "" {
		return nil, "", errors.New("usage: :group <id,id,...> [name]")
	}
	list, name, _ := strings.Cut(c.Args, " ")
	for _, raw := range strings.Split(list, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return nil, "", fmt.Errorf("invalid user id %q", raw)
		}
		memberIDs = append(memberIDs, id)
	}
	return memberIDs, strings.TrimSpace(name), nil
}
