// Package script drives a Store and its Cursor from YAML step files. Scripts
// are the CLI's input format and double as readable end-to-end fixtures.
package script

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/stash/internal/inventory"
)

// Step operations.
const (
	OpCreateGrid   = "create_grid"
	OpCreateSocket = "create_socket"
	OpDelete       = "delete"
	OpAdd          = "add"
	OpRemove       = "remove"
	OpClear        = "clear"
	OpPickUp       = "pick_up"
	OpPutDown      = "put_down"
	OpMove         = "move"
	OpDrop         = "drop"
	OpExpect       = "expect"
)

// Script is an ordered list of steps.
type Script struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step is one operation. Which fields matter depends on Op.
type Step struct {
	Op        string                `yaml:"op"`
	Container inventory.ContainerID `yaml:"container"`
	Name      string                `yaml:"name"`
	Width     int                   `yaml:"width"`
	Height    int                   `yaml:"height"`
	Temporary bool                  `yaml:"temporary"`

	// Template names an item template to build for add. Item gives an inline
	// item instead. ID overrides the built item's ID, or names the item for
	// remove and pick_up.
	Template string          `yaml:"template"`
	Item     *inventory.Item `yaml:"item"`
	ID       inventory.ItemID `yaml:"id"`

	X int `yaml:"x"`
	Y int `yaml:"y"`
	// PX and PY are the pointer position for move.
	PX float64 `yaml:"px"`
	PY float64 `yaml:"py"`

	Swap    bool `yaml:"swap"`
	Merge   bool `yaml:"merge"`
	Partial bool `yaml:"partial"`

	Expect *Expectation `yaml:"expect"`
}

// Expectation is checked by an expect step. Unset fields are not checked.
type Expectation struct {
	// Occupant is the item expected at (X, Y) of the step's container; empty
	// means the cell is free.
	Occupant *inventory.ItemID `yaml:"occupant"`
	// Stack is the expected StackSize of item ID in the step's container.
	Stack *int `yaml:"stack"`
	// Items is the expected number of items in the step's container.
	Items *int `yaml:"items"`
	// Exists reports whether the step's container is registered.
	Exists *bool `yaml:"exists"`
	// Held is the item expected on the cursor; empty means nothing held.
	Held *inventory.ItemID `yaml:"held"`
	// Offset is the expected cursor hold offset as [x, y].
	Offset []int `yaml:"offset,flow"`
}

// Parse decodes a Script from YAML.
//
// Postcondition: every step names a known op.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing script: %w", err)
	}
	for i, st := range s.Steps {
		if !knownOp(st.Op) {
			return nil, fmt.Errorf("parsing script: step %d: unknown op %q", i, st.Op)
		}
		if st.Op == OpExpect && st.Expect == nil {
			return nil, fmt.Errorf("parsing script: step %d: expect step has no expectation", i)
		}
		if st.Expect != nil && st.Expect.Offset != nil && len(st.Expect.Offset) != 2 {
			return nil, fmt.Errorf("parsing script: step %d: offset needs two components", i)
		}
	}
	return &s, nil
}

// Load reads and parses the script at path.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading script %q: %w", path, err)
	}
	return Parse(data)
}

func knownOp(op string) bool {
	switch op {
	case OpCreateGrid, OpCreateSocket, OpDelete, OpAdd, OpRemove, OpClear,
		OpPickUp, OpPutDown, OpMove, OpDrop, OpExpect:
		return true
	}
	return false
}
