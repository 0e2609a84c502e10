package edit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/flemzord/agentbridge/internal/security"
	"github.com/flemzord/agentbridge/internal/tool"
)

const (
	toolName = "str_replace_editor"

	snippetLines = 4

	clippedNote = "\n<response clipped><NOTE>File is too large to show in full. Use view_range to see a part of it.</NOTE>"
)

// Commands accepted by the tool.
const (
	CommandView       = "view"
	CommandCreate     = "create"
	CommandStrReplace = "str_replace"
	CommandInsert     = "insert"
	CommandUndoEdit   = "undo_edit"
)

var commands = []string{CommandView, CommandCreate, CommandStrReplace, CommandInsert, CommandUndoEdit}

var schema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "command": {"type": "string", "enum": ["view", "create", "str_replace", "insert", "undo_edit"], "description": "The command to run."},
    "path": {"type": "string", "description": "Absolute path to the file or directory."},
    "file_text": {"type": "string", "description": "Content of the file to create. Required by create."},
    "old_str": {"type": "string", "description": "Exact text to replace. It must appear once in the file. Required by str_replace."},
    "new_str": {"type": "string", "description": "Replacement text for str_replace, or the text to add for insert."},
    "insert_line": {"type": "integer", "description": "Line after which new_str is inserted. Required by insert."},
    "view_range": {"type": "array", "items": {"type": "integer"}, "description": "Optional [start, end] lines for view; end -1 reads to the end."}
  },
  "required": ["command", "path"]
}`)

type input struct {
	Command    string  `json:"command"`
	Path       string  `json:"path"`
	FileText   *string `json:"file_text"`
	OldStr     *string `json:"old_str"`
	NewStr     *string `json:"new_str"`
	InsertLine *int    `json:"insert_line"`
	ViewRange  []int   `json:"view_range"`
}

// Tool views, creates and edits files. Errors caused by the request, such
// as a missing file or an ambiguous old_str, are reported to the model as
// error results.
type Tool struct {
	maxOutput    int
	historyDepth int
	confine      bool

	mu      sync.Mutex
	history map[historyKey][]string
}

type historyKey struct {
	session string
	path    string
}

// New creates an editor tool. Output longer than maxOutput bytes is
// clipped; at most historyDepth edits per file are kept for undo_edit.
// When confine is set, paths outside the session workspace are rejected.
func New(maxOutput, historyDepth int, confine bool) *Tool {
	return &Tool{
		maxOutput:    maxOutput,
		historyDepth: historyDepth,
		confine:      confine,
		history:      make(map[historyKey][]string),
	}
}

// Name implements tool.Tool.
func (t *Tool) Name() string { return toolName }

// Description implements tool.Tool.
func (t *Tool) Description() string {
	return "View, create and edit files. view shows a file with line numbers, " +
		"or lists a directory two levels deep. create fails if the file exists. " +
		"str_replace needs old_str to match exactly one place in the file. " +
		"undo_edit reverts the last str_replace or insert on a file."
}

// Schema implements tool.Tool.
func (t *Tool) Schema() json.RawMessage { return schema }

// Scopes implements tool.Tool.
func (t *Tool) Scopes() []tool.Scope { return []tool.Scope{tool.ScopeReadWrite} }

// Execute implements tool.Tool.
func (t *Tool) Execute(ctx context.Context, args json.RawMessage, env tool.ExecutionEnv) (tool.Result, error) {
	var in input
	if err := json.Unmarshal(args, &in); err != nil {
		return tool.Result{}, fmt.Errorf("%w: %w", tool.ErrInvalidInput, err)
	}
	if !slices.Contains(commands, in.Command) {
		return tool.Errorf("Unrecognized command %q. The allowed commands are: %s", in.Command, strings.Join(commands, ", ")), nil
	}
	if err := ctx.Err(); err != nil {
		return tool.Result{}, err
	}

	path, res, ok := t.checkPath(in.Command, in.Path, env.Workspace)
	if !ok {
		return res, nil
	}
	key := historyKey{session: env.SessionID, path: path}

	switch in.Command {
	case CommandView:
		return t.view(path, in.ViewRange), nil
	case CommandCreate:
		if in.FileText == nil {
			return tool.Errorf("Parameter `file_text` is required for command: create"), nil
		}
		return t.create(path, *in.FileText), nil
	case CommandStrReplace:
		if in.OldStr == nil {
			return tool.Errorf("Parameter `old_str` is required for command: str_replace"), nil
		}
		return t.strReplace(key, *in.OldStr, deref(in.NewStr)), nil
	case CommandInsert:
		if in.InsertLine == nil {
			return tool.Errorf("Parameter `insert_line` is required for command: insert"), nil
		}
		if in.NewStr == nil {
			return tool.Errorf("Parameter `new_str` is required for command: insert"), nil
		}
		return t.insert(key, *in.InsertLine, *in.NewStr), nil
	default:
		return t.undo(key), nil
	}
}

// checkPath validates path for command and returns it cleaned.
func (t *Tool) checkPath(command, path, workspace string) (string, tool.Result, bool) {
	if !filepath.IsAbs(path) {
		suggested := filepath.Join(workspace, path)
		return "", tool.Errorf("The path %s is not an absolute path, it should start with `/`. Maybe you meant %s?", path, suggested), false
	}
	path = filepath.Clean(path)
	if err := security.ValidatePath(path); err != nil {
		return "", tool.ErrorResult(err), false
	}
	if t.confine && workspace != "" {
		if err := security.ConfinePath(workspace, path); err != nil {
			return "", tool.Errorf("The path %s is outside the workspace %s.", path, workspace), false
		}
	}

	fi, err := os.Stat(path)
	switch {
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return "", tool.ErrorResult(err), false
	case err != nil && command != CommandCreate:
		return "", tool.Errorf("The path %s does not exist. Please provide a valid path.", path), false
	case err == nil && command == CommandCreate:
		return "", tool.Errorf("File already exists at: %s. Cannot overwrite files using command `create`.", path), false
	case err == nil && fi.IsDir() && command != CommandView:
		return "", tool.Errorf("The path %s is a directory and only the `view` command can be used on directories", path), false
	}
	return path, tool.Result{}, true
}

func (t *Tool) view(path string, viewRange []int) tool.Result {
	fi, err := os.Stat(path)
	if err != nil {
		return tool.ErrorResult(err)
	}
	if fi.IsDir() {
		if viewRange != nil {
			return tool.Errorf("The `view_range` parameter is not allowed when `path` points to a directory.")
		}
		return t.listDir(path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return tool.Errorf("Ran into %v while trying to read %s", err, path)
	}
	text := string(content)
	first := 1
	if viewRange != nil {
		lines := strings.Split(text, "\n")
		if len(viewRange) != 2 {
			return tool.Errorf("Invalid `view_range`. It should be a list of two integers.")
		}
		start, end := viewRange[0], viewRange[1]
		if start < 1 || start > len(lines) {
			return tool.Errorf("Invalid `view_range`: %v. Its first element `%d` should be within the range of lines of the file: [1, %d]", viewRange, start, len(lines))
		}
		if end != -1 && end > len(lines) {
			return tool.Errorf("Invalid `view_range`: %v. Its second element `%d` should be smaller than the number of lines in the file: `%d`", viewRange, end, len(lines))
		}
		if end != -1 && end < start {
			return tool.Errorf("Invalid `view_range`: %v. Its second element `%d` should be larger or equal than its first `%d`", viewRange, end, start)
		}
		if end == -1 {
			end = len(lines)
		}
		text = strings.Join(lines[start-1:end], "\n")
		first = start
	}
	return tool.Result{Output: t.clip(catN(text, path, first))}
}

// listDir lists non-hidden entries up to two levels below root.
func (t *Tool) listDir(root string) tool.Result {
	var entries []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == root {
				return err
			}
			return nil
		}
		if p == root {
			entries = append(entries, p)
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		entries = append(entries, p)
		rel, _ := filepath.Rel(root, p)
		if d.IsDir() && strings.Count(rel, string(filepath.Separator)) >= 1 {
			return fs.SkipDir
		}
		return nil
	})
	if err != nil {
		return tool.Errorf("Ran into %v while trying to list %s", err, root)
	}
	out := fmt.Sprintf("Here's the files and directories up to 2 levels deep in %s, excluding hidden items:\n%s\n",
		root, strings.Join(entries, "\n"))
	return tool.Result{Output: t.clip(out)}
}

func (t *Tool) create(path, text string) tool.Result {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return tool.Errorf("Ran into %v while trying to write to %s", err, path)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return tool.Errorf("Ran into %v while trying to write to %s", err, path)
	}
	return tool.Result{Output: "File created successfully at: " + path}
}

func (t *Tool) strReplace(key historyKey, oldStr, newStr string) tool.Result {
	content, mode, res, ok := readForEdit(key.path)
	if !ok {
		return res
	}

	switch n := strings.Count(content, oldStr); {
	case oldStr == "" || n == 0:
		return tool.Errorf("No replacement was performed, old_str `%s` did not appear verbatim in %s.", oldStr, key.path)
	case n > 1:
		var lines []string
		for i, line := range strings.Split(content, "\n") {
			if strings.Contains(line, oldStr) {
				lines = append(lines, fmt.Sprint(i+1))
			}
		}
		if len(lines) < 2 {
			return tool.Errorf("No replacement was performed. Multiple occurrences of old_str `%s`. Please ensure it is unique", oldStr)
		}
		return tool.Errorf("No replacement was performed. Multiple occurrences of old_str `%s` in lines [%s]. Please ensure it is unique",
			oldStr, strings.Join(lines, ", "))
	}

	updated := strings.Replace(content, oldStr, newStr, 1)
	if err := os.WriteFile(key.path, []byte(updated), mode); err != nil {
		return tool.Errorf("Ran into %v while trying to write to %s", err, key.path)
	}
	t.push(key, content)

	at := strings.Count(content[:strings.Index(content, oldStr)], "\n")
	start := max(0, at-snippetLines)
	end := at + snippetLines + strings.Count(newStr, "\n")
	lines := strings.Split(updated, "\n")
	snippet := strings.Join(lines[start:min(end+1, len(lines))], "\n")

	return tool.Result{Output: "The file " + key.path + " has been edited. " +
		catN(snippet, "a snippet of "+key.path, start+1) +
		"Review the changes and make sure they are as expected. Edit the file again if necessary."}
}

func (t *Tool) insert(key historyKey, line int, newStr string) tool.Result {
	content, mode, res, ok := readForEdit(key.path)
	if !ok {
		return res
	}

	lines := strings.Split(content, "\n")
	if line < 0 || line > len(lines) {
		return tool.Errorf("Invalid `insert_line` parameter: %d. It should be within the range of lines of the file: [0, %d]", line, len(lines))
	}
	added := strings.Split(newStr, "\n")
	updatedLines := slices.Concat(lines[:line], added, lines[line:])
	updated := strings.Join(updatedLines, "\n")

	if err := os.WriteFile(key.path, []byte(updated), mode); err != nil {
		return tool.Errorf("Ran into %v while trying to write to %s", err, key.path)
	}
	t.push(key, content)

	start := max(0, line-snippetLines)
	end := min(len(updatedLines), line+len(added)+snippetLines)
	snippet := strings.Join(updatedLines[start:end], "\n")

	return tool.Result{Output: "The file " + key.path + " has been edited. " +
		catN(snippet, "a snippet of the edited file", start+1) +
		"Review the changes and make sure they are as expected (correct indentation, no duplicate lines, etc). Edit the file again if necessary."}
}

func (t *Tool) undo(key historyKey) tool.Result {
	prev, ok := t.pop(key)
	if !ok {
		return tool.Errorf("No edit history found for %s.", key.path)
	}
	mode := fs.FileMode(0o644)
	if fi, err := os.Stat(key.path); err == nil {
		mode = fi.Mode().Perm()
	}
	if err := os.WriteFile(key.path, []byte(prev), mode); err != nil {
		t.push(key, prev)
		return tool.Errorf("Ran into %v while trying to write to %s", err, key.path)
	}
	return tool.Result{Output: "Last edit to " + key.path + " undone successfully. " + t.clip(catN(prev, key.path, 1))}
}

func (t *Tool) push(key historyKey, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := append(t.history[key], content)
	if t.historyDepth > 0 && len(h) > t.historyDepth {
		h = h[len(h)-t.historyDepth:]
	}
	t.history[key] = h
}

func (t *Tool) pop(key historyKey) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.history[key]
	if len(h) == 0 {
		return "", false
	}
	prev := h[len(h)-1]
	if len(h) == 1 {
		delete(t.history, key)
	} else {
		t.history[key] = h[:len(h)-1]
	}
	return prev, true
}

func (t *Tool) clip(s string) string {
	if t.maxOutput <= 0 || len(s) <= t.maxOutput {
		return s
	}
	return s[:t.maxOutput] + clippedNote
}

func readForEdit(path string) (string, fs.FileMode, tool.Result, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", 0, tool.ErrorResult(err), false
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", 0, tool.Errorf("Ran into %v while trying to read %s", err, path), false
	}
	return string(content), fi.Mode().Perm(), tool.Result{}, true
}

// catN formats text the way `cat -n` does, numbering from first.
func catN(text, descriptor string, first int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here's the result of running `cat -n` on %s:\n", descriptor)
	for i, line := range strings.Split(text, "\n") {
		fmt.Fprintf(&b, "%6d\t%s\n", i+first, line)
	}
	return b.String()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
