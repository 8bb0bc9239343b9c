package commands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/internal/config"
	"github.com/alihassan568/discord-bot-multipurpose-personal-sub002/pkg/util"
)

var errBadInput = errors.New("bad input")

func badInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadInput, fmt.Sprintf(format, args...))
}

// options indexes the leaf options of a command by name. Snowflake values are read
// without touching session state.
type options map[string]*discordgo.ApplicationCommandInteractionDataOption

func newOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) options {
	m := make(options, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func (o options) has(name string) bool {
	_, ok := o[name]
	return ok
}

func (o options) str(name string) string {
	if opt, ok := o[name]; ok {
		return strings.TrimSpace(opt.StringValue())
	}
	return ""
}

func (o options) integer(name string) int64 {
	if opt, ok := o[name]; ok {
		return opt.IntValue()
	}
	return 0
}

func (o options) flag(name string) bool {
	if opt, ok := o[name]; ok {
		return opt.BoolValue()
	}
	return false
}

// id returns the snowflake of a user, role or channel option.
func (o options) id(name string) (uint64, bool) {
	opt, ok := o[name]
	if !ok {
		return 0, false
	}
	raw, ok := opt.Value.(string)
	if !ok {
		return 0, false
	}
	id, err := util.StringToUint64(raw)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func (o options) uuidValue(name string) (uuid.UUID, error) {
	raw := o.str(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, badInput("%q is not a valid ID", raw)
	}
	return id, nil
}

// whitelistTarget picks the single user, role or channel given to a whitelist command.
func (o options) whitelistTarget() (config.WhitelistKind, uint64, error) {
	var (
		kind  config.WhitelistKind
		id    uint64
		found int
	)
	for _, k := range []config.WhitelistKind{config.WhitelistUser, config.WhitelistRole, config.WhitelistChannel} {
		if v, ok := o.id(string(k)); ok {
			kind, id = k, v
			found++
		}
	}
	switch found {
	case 0:
		return "", 0, badInput("pick a user, role or channel")
	case 1:
		return kind, id, nil
	default:
		return "", 0, badInput("pick only one of user, role or channel")
	}
}

// parseWindow accepts Go durations ("90s", "5m") and bare seconds ("30").
func parseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, badInput("window is required")
	}
	if n, err := util.StringToUint64(s); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, badInput("%q is not a duration, use a value like 30s or 5m", s)
	}
	if d <= 0 {
		return 0, badInput("window must be positive")
	}
	return d, nil
}
