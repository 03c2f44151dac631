package models

import (
	"fmt"
	"strings"
)

// FileRef points at a message in the bot's storage channel. Files are
// never re-uploaded; they are forwarded from the channel by message id.
type FileRef struct {
	MessageID int `json:"messageId"`
}

// Folder is one node of a bot's content tree. Subfolder names are the
// navigation labels shown to users; files are forwarded when the folder
// is opened.
type Folder struct {
	Subfolders map[string]*Folder `json:"subfolders,omitempty"`
	Files      []FileRef          `json:"files,omitempty"`
}

// Walk resolves a path of subfolder names starting at f. It returns
// false if any segment is missing.
func (f *Folder) Walk(path []string) (*Folder, bool) {
	node := f
	for _, name := range path {
		if node == nil {
			return nil, false
		}
		next, ok := node.Subfolders[name]
		if !ok {
			return nil, false
		}
		node = next
	}
	if node == nil {
		return nil, false
	}
	return node, true
}

// ChildNames returns the subfolder names of f in map order.
func (f *Folder) ChildNames() []string {
	if f == nil || len(f.Subfolders) == 0 {
		return nil
	}
	names := make([]string, 0, len(f.Subfolders))
	for name := range f.Subfolders {
		names = append(names, name)
	}
	return names
}

// Validate checks every folder name in the tree. Names containing the
// callback field separator or the path separator would produce payloads
// that decode to a different location, so they are rejected up front.
func (f *Folder) Validate() error {
	return f.validate(nil)
}

func (f *Folder) validate(path []string) error {
	if f == nil {
		return nil
	}
	for name, child := range f.Subfolders {
		if name == "" {
			return fmt.Errorf("empty folder name under %q", strings.Join(path, "/"))
		}
		if strings.ContainsAny(name, "|/") {
			return fmt.Errorf("folder name %q contains a reserved character", name)
		}
		if err := child.validate(append(path, name)); err != nil {
			return err
		}
	}
	return nil
}
