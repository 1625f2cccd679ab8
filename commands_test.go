package main

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"testing"
)

func TestCommandsEndpointServesSortedSchema(t *testing.T) {
	app := newTestApp(t)
	server := newTestServer(t, app)

	resp, err := http.Get(server.URL + "/v1/commands")
	if err != nil {
		t.Fatalf("get commands: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("commands status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content type %q", ct)
	}

	var docs []CommandDoc
	if err := json.NewDecoder(resp.Body).Decode(&docs); err != nil {
		t.Fatalf("decode commands: %v", err)
	}
	if len(docs) != len(commandDocs) {
		t.Fatalf("served %d commands, table holds %d", len(docs), len(commandDocs))
	}
	if !sort.SliceIsSorted(docs, func(i, j int) bool { return docs[i].Name < docs[j].Name }) {
		t.Fatalf("commands not sorted by name: %+v", docs)
	}
}

func TestHelpTextCoversEveryCommand(t *testing.T) {
	text := helpText()
	for _, doc := range commandDocs {
		if !strings.Contains(text, doc.Name) || !strings.Contains(text, doc.Description) {
			t.Fatalf("help text missing %q:\n%s", doc.Name, text)
		}
	}
}
