package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/portfolio-admin/internal/store"
	"github.com/jonathan/portfolio-admin/internal/types"
)

func seededSkills(t *testing.T, docs map[string]string) *store.Memory {
	t.Helper()
	mem := store.NewMemory()
	for k, v := range docs {
		require.NoError(t, mem.WriteAt(context.Background(), "skills", k, json.RawMessage(v)))
	}
	return mem
}

func TestDumpCollection_JSON(t *testing.T) {
	mem := seededSkills(t, map[string]string{
		"0": `{"name":"Go","type":"Backend","image":""}`,
		"1": `{"name":"React","type":"Frontend","image":""}`,
	})
	var out bytes.Buffer

	require.NoError(t, dumpCollection(context.Background(), &out, mem, types.SkillsKind, dumpOptions{}))

	var docs map[string]map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &docs))
	assert.Len(t, docs, 2)
	assert.Equal(t, "React", docs["1"]["name"])
}

func TestDumpCollection_Summary(t *testing.T) {
	mem := seededSkills(t, map[string]string{
		"10": `{"name":"Rust","type":"Backend"}`,
		"2":  `{"name":"Go","type":"Backend"}`,
	})
	var out bytes.Buffer

	require.NoError(t, dumpCollection(context.Background(), &out, mem, types.SkillsKind, dumpOptions{summary: true}))

	text := out.String()
	assert.Contains(t, text, "Skill (2)")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("[2]")), bytes.Index(out.Bytes(), []byte("[10]")), "keys are in numeric order")
}

func TestDumpCollection_Check(t *testing.T) {
	mem := seededSkills(t, map[string]string{
		"0": `{"name":"Go","type":"Backend"}`,
		"1": `{"name":"Cobol","type":"Mainframe"}`,
	})
	var out bytes.Buffer

	err := dumpCollection(context.Background(), &out, mem, types.SkillsKind, dumpOptions{check: true, summary: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 skills documents are invalid")
	assert.Contains(t, out.String(), "[1] INVALID")

	// Without --check the same collection dumps cleanly.
	out.Reset()
	assert.NoError(t, dumpCollection(context.Background(), &out, mem, types.SkillsKind, dumpOptions{}))
}

func TestDumpCollection_Empty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, dumpCollection(context.Background(), &out, store.NewMemory(), types.EducationKind, dumpOptions{summary: true}))
	assert.Contains(t, out.String(), "(empty)")
}

func TestDumpCommand_UnknownKind(t *testing.T) {
	err := runDump(dumpCmd, []string{"recipes"})
	assert.ErrorContains(t, err, `unknown content kind "recipes"`)
}
