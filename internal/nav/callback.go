// Package nav renders the folder tree as inline keyboards and decodes
// the callback payloads those keyboards produce. Navigation is
// stateless: every payload carries the full location, so a stale
// keyboard from an old message still resolves against the current tree.
package nav

import (
	"errors"
	"strconv"
	"strings"
)

// Callback actions as they appear on the wire.
const (
	ActionFolder = "folder"
	ActionMain   = "main"
	ActionPage   = "page"
)

const (
	fieldSep = "|"
	pathSep  = "/"
)

// ErrMalformed reports a callback payload that does not decode to a
// known action. Handlers acknowledge such events and do nothing else.
var ErrMalformed = errors.New("nav: malformed callback payload")

// Callback is a decoded navigation request.
type Callback struct {
	Action string
	Path   []string
	Page   int
}

// EncodeFolder builds the payload for opening a folder at path.
func EncodeFolder(path []string) string {
	return ActionFolder + fieldSep + strings.Join(path, pathSep)
}

// EncodeMain builds the payload for returning to the root menu.
func EncodeMain() string {
	return ActionMain
}

// EncodePage builds the payload for jumping to a page of a folder.
// At the root the path field is empty: "page|1|".
func EncodePage(page int, path []string) string {
	return ActionPage + fieldSep + strconv.Itoa(page) + fieldSep + strings.Join(path, pathSep)
}

// Decode parses a callback payload. The path field is split on "/" and
// empty segments are dropped, so "page|1|" decodes to the root.
func Decode(data string) (Callback, error) {
	parts := strings.SplitN(data, fieldSep, 3)
	switch parts[0] {
	case ActionMain:
		if len(parts) != 1 {
			return Callback{}, ErrMalformed
		}
		return Callback{Action: ActionMain}, nil
	case ActionFolder:
		if len(parts) != 2 {
			return Callback{}, ErrMalformed
		}
		return Callback{Action: ActionFolder, Path: splitPath(parts[1])}, nil
	case ActionPage:
		if len(parts) != 3 {
			return Callback{}, ErrMalformed
		}
		page, err := strconv.Atoi(parts[1])
		if err != nil {
			return Callback{}, ErrMalformed
		}
		return Callback{Action: ActionPage, Path: splitPath(parts[2]), Page: page}, nil
	default:
		return Callback{}, ErrMalformed
	}
}

func splitPath(s string) []string {
	var path []string
	for _, seg := range strings.Split(s, pathSep) {
		if seg != "" {
			path = append(path, seg)
		}
	}
	return path
}
