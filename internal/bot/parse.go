package bot

import (
	"fmt"
	"strconv"
	"strings"

	"nzbwatch/internal/model"
)

// RuleArgs holds the parsed arguments of a rule command.
type RuleArgs struct {
	SourceID int64
	Scope    model.RuleScope
	Value    string
}

// ParseRuleCommand parses arguments for /include, /exclude, etc.
// Format: <source_id> [-s title|filenames|all] <value...>
func ParseRuleCommand(args string) (RuleArgs, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return RuleArgs{}, fmt.Errorf("usage: <source_id> [-s title|filenames|all] <value>")
	}

	sourceID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return RuleArgs{}, fmt.Errorf("invalid source ID %q", parts[0])
	}

	scope := model.ScopeAll
	rest := parts[1:]

	if len(rest) >= 2 && rest[0] == "-s" {
		switch rest[1] {
		case "title":
			scope = model.ScopeTitle
		case "filenames":
			scope = model.ScopeFilenames
		case "all":
			scope = model.ScopeAll
		default:
			return RuleArgs{}, fmt.Errorf("invalid scope %q, use: title, filenames, all", rest[1])
		}
		rest = rest[2:]
	}

	if len(rest) == 0 {
		return RuleArgs{}, fmt.Errorf("rule value is required")
	}

	return RuleArgs{
		SourceID: sourceID,
		Scope:    scope,
		Value:    strings.Join(rest, " "),
	}, nil
}

// ParseAddArgs parses arguments for /add: <url> [nzb|rss].
func ParseAddArgs(args string) (string, model.SourceKind, error) {
	parts := strings.Fields(args)
	if len(parts) == 0 {
		return "", "", fmt.Errorf("url is required")
	}
	url := parts[0]

	kind := model.SourceRSS
	if len(parts) >= 2 {
		switch strings.ToLower(parts[1]) {
		case "rss":
		case "nzb":
			kind = model.SourceNZB
		default:
			return "", "", fmt.Errorf("invalid kind %q, use: rss, nzb", parts[1])
		}
	}
	return url, kind, nil
}

// ParseIDArg extracts a numeric ID from a command argument string.
func ParseIDArg(args string) (int64, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 0, fmt.Errorf("source ID is required")
	}
	id, err := strconv.ParseInt(strings.Fields(s)[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid source ID %q", s)
	}
	return id, nil
}

// ParseRenameArgs extracts a source ID and new name from command arguments.
func ParseRenameArgs(args string) (int64, string, error) {
	parts := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(parts) < 2 {
		return 0, "", fmt.Errorf("usage: /rename <id> <new_name>")
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid source ID %q", parts[0])
	}
	name := strings.TrimSpace(parts[1])
	if name == "" {
		return 0, "", fmt.Errorf("new name cannot be empty")
	}
	return id, name, nil
}

// ParseIntervalArgs extracts a source ID and interval in minutes.
func ParseIntervalArgs(args string) (int64, int, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("usage: /interval <id> <minutes>")
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid source ID %q", parts[0])
	}
	mins, err := strconv.Atoi(parts[1])
	if err != nil || mins < 1 || mins > 1440 {
		return 0, 0, fmt.Errorf("interval must be between 1 and 1440 minutes")
	}
	return id, mins, nil
}

// ParseValueArgs extracts a source ID and a single trailing value.
func ParseValueArgs(args string) (int64, string, error) {
	parts := strings.Fields(args)
	if len(parts) < 2 {
		return 0, "", fmt.Errorf("a source ID and a value are required")
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid source ID %q", parts[0])
	}
	return id, strings.Join(parts[1:], " "), nil
}
