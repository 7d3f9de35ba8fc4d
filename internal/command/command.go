// Package command defines the structured commands the language model
// produces and validates them before anything is executed.
package command

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/nugget/kith/internal/model"
)

// Intent selects which parameter block of a Command is in use.
type Intent string

const (
	IntentSearch Intent = "search"
	IntentRefine Intent = "refine"
	IntentSelect Intent = "select"
	IntentAct    Intent = "act"
	IntentBackup Intent = "backup"
)

// Intents lists every known intent.
var Intents = []Intent{IntentSearch, IntentRefine, IntentSelect, IntentAct, IntentBackup}

// SelectionType is how a select command changes the selection.
type SelectionType string

const (
	SelectAdd    SelectionType = "add"
	SelectRemove SelectionType = "remove"
	SelectAll    SelectionType = "all"
	SelectNone   SelectionType = "none"
)

// SelectionTypes lists every known selection type.
var SelectionTypes = []SelectionType{SelectAdd, SelectRemove, SelectAll, SelectNone}

// Action is what an act command does to its targets.
type Action string

const (
	ActionExport Action = "export"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionTag    Action = "tag"
	ActionUntag  Action = "untag"
)

// Actions lists every known action.
var Actions = []Action{ActionExport, ActionCreate, ActionUpdate, ActionDelete, ActionTag, ActionUntag}

// Mutating reports whether the action changes the datastore.
func (a Action) Mutating() bool {
	return a != ActionExport
}

// Kind maps an action to the permission kind that governs it: tag and
// untag are updates.
func (a Action) Kind() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionDelete:
		return "delete"
	case ActionUpdate, ActionTag, ActionUntag:
		return "update"
	}
	return ""
}

// Command is a tagged variant: Intent names the one parameter block
// that must be set.
type Command struct {
	Intent      Intent        `json:"intent"`
	Explanation string        `json:"explanation,omitempty"`
	Search      *SearchParams `json:"search,omitempty"`
	Refine      *SearchParams `json:"refine,omitempty"`
	Select      *SelectParams `json:"select,omitempty"`
	Act         *ActParams    `json:"act,omitempty"`
	Backup      *BackupParams `json:"backup,omitempty"`
}

// SearchParams parameterize search and refine. Refine may leave
// EntityType empty to keep the previous search's type.
type SearchParams struct {
	EntityType model.EntityType `json:"entity_type,omitempty"`
	Filters    model.Filter     `json:"filters"`
}

// SelectParams parameterize select.
type SelectParams struct {
	SelectionType SelectionType `json:"selection_type"`
	Indices       []int         `json:"indices,omitempty"`
	IDs           []string      `json:"ids,omitempty"`
	Match         string        `json:"match,omitempty"`
}

// ActParams parameterize act. Targets are IDs when given, else the
// current selection; create has no targets.
type ActParams struct {
	Action     Action            `json:"action"`
	Format     string            `json:"format,omitempty"`
	EntityType model.EntityType  `json:"entity_type,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	Tag        string            `json:"tag,omitempty"`
	IDs        []string          `json:"ids,omitempty"`
	Label      string            `json:"label,omitempty"`
}

// BackupParams parameterize a manual backup.
type BackupParams struct {
	Comment string `json:"comment,omitempty"`
}

// String returns the command as compact JSON.
func (c Command) String() string {
	data, err := json.Marshal(c)
	if err != nil {
		return string(c.Intent)
	}
	return string(data)
}

// Decode parses exactly one JSON command. Unknown fields anywhere in the
// object are rejected, as is trailing data after it.
func Decode(data []byte) (Command, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var c Command
	if err := dec.Decode(&c); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Command{}, errors.New("decode command: unexpected data after the command object")
	}
	if c.Intent == "" {
		return Command{}, errors.New(`decode command: missing "intent"`)
	}
	return c, nil
}
