package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRootCommandWiring(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"enrich", "batch", "fetch", "import", "profiles", "serve"} {
		assert.True(t, names[want], "missing command %q", want)
	}
}

func TestProfilesSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range profilesCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["show"])
	assert.True(t, names["set"])
	assert.True(t, names["sweep"])
}
