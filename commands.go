package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// CommandDoc describes a single operator shell command. The structure is
// deliberately generic so remote frontends can attach extra metadata without
// breaking the API.
type CommandDoc struct {
	Name        string `json:"name"`
	Args        string `json:"args,omitempty"`
	Description string `json:"description"`
}

// commandDocs is the canonical command table. The shell help text and the
// /v1/commands endpoint both render from it, so the two never drift apart.
var commandDocs = []CommandDoc{
	{Name: "pos", Args: "x y z", Description: "set the task-space goal position (meters)"},
	{Name: "ori", Args: "x y z", Description: "set the goal orientation from XYZ Euler angles (radians)"},
	{Name: "joint", Args: "q1..qN", Description: "set the joint-space goal (radians)"},
	{Name: "move", Args: "dx dy dz", Description: "nudge the goal position"},
	{Name: "rot", Args: "rx ry rz", Description: "nudge the goal orientation"},
	{Name: "gains", Args: "[field v]", Description: "show or set servo gains"},
	{Name: "friction", Args: "kv", Description: "set friction compensation damping"},
	{Name: "mode", Args: "m", Description: "pick the control law: task, incremental, rmrc, joint"},
	{Name: "sim", Args: "on|off", Description: "actuate the simulated plant or the robot bridge"},
	{Name: "pause", Description: "toggle the operator hold"},
	{Name: "state", Description: "dump the shared world state"},
	{Name: "targets", Description: "list live projectile tracks"},
	{Name: "help", Description: "this text"},
	{Name: "quit", Description: "stop the daemon"},
}

// helpText renders the command table for the interactive shell.
func helpText() string {
	var b strings.Builder
	b.WriteString("commands:")
	for _, doc := range commandDocs {
		usage := doc.Name
		if doc.Args != "" {
			usage += " " + doc.Args
		}
		fmt.Fprintf(&b, "\n  %-16s %s", usage, doc.Description)
	}
	return b.String()
}

// handleCommands serves the command schema as JSON so operator frontends and
// tooling can stay in sync with the shell without parsing its help output.
func handleCommands(w http.ResponseWriter, r *http.Request) {
	//1.- Sort a copy so concurrent requests never mutate the canonical table.
	docs := append([]CommandDoc(nil), commandDocs...)
	sort.SliceStable(docs, func(i, j int) bool {
		return strings.Compare(docs[i].Name, docs[j].Name) < 0
	})

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(docs); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
