package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/cobra"

	"github.com/aidanlsb/kiln/internal/logging"
	"github.com/aidanlsb/kiln/internal/vault"
)

var captureStdoutMu sync.Mutex

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	captureStdoutMu.Lock()
	defer captureStdoutMu.Unlock()

	orig := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = w

	outputCh := make(chan string, 1)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		_ = r.Close()
		outputCh <- buf.String()
	}()

	fn()
	os.Stdout = orig
	_ = w.Close()
	return <-outputCh
}

type jsonResponse struct {
	OK       bool            `json:"ok"`
	Data     json.RawMessage `json:"data"`
	Error    *ErrorInfo      `json:"error"`
	Warnings []Warning       `json:"warnings"`
}

// newTestVault creates an empty vault and points the CLI's global state at
// it in JSON mode.
func newTestVault(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	v, err := vault.Init(dir, vault.Options{Logger: logging.Discard()})
	if err != nil {
		t.Fatalf("vault.Init: %v", err)
	}
	if err := v.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	prevVault, prevJSON, prevSets := resolvedVaultPath, jsonOutput, newSetFlags
	t.Cleanup(func() {
		resolvedVaultPath, jsonOutput, newSetFlags = prevVault, prevJSON, prevSets
	})
	resolvedVaultPath = dir
	jsonOutput = true
	newSetFlags = nil
	return dir
}

func run(t *testing.T, cmd *cobra.Command, args ...string) jsonResponse {
	t.Helper()
	var runErr error
	out := captureStdout(t, func() {
		runErr = cmd.RunE(cmd, args)
	})
	if runErr != nil && !IsReported(runErr) {
		t.Fatalf("%s %v: %v", cmd.Name(), args, runErr)
	}
	var resp jsonResponse
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("%s %v: invalid JSON %v\n%s", cmd.Name(), args, err, out)
	}
	return resp
}

func mustOK(t *testing.T, resp jsonResponse, into any) {
	t.Helper()
	if !resp.OK {
		t.Fatalf("expected ok, got error %+v", resp.Error)
	}
	if into != nil {
		if err := json.Unmarshal(resp.Data, into); err != nil {
			t.Fatalf("decode data: %v\n%s", err, resp.Data)
		}
	}
}

func fileExists(dir, rel string) bool {
	_, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel)))
	return err == nil
}

func TestEditCommands(t *testing.T) {
	dir := newTestVault(t)

	var res editResult
	mustOK(t, run(t, mkdirCmd, "main"), &res)
	if res.Path != "main" || res.Kind != "root" {
		t.Fatalf("mkdir root = %+v", res)
	}
	if !fileExists(dir, "main/.root") {
		t.Fatal("main/.root not written")
	}

	mustOK(t, run(t, mkdirCmd, "main/art"), &res)
	if !fileExists(dir, "main/art/.dir") {
		t.Fatal("main/art/.dir not written")
	}

	newSetFlags = []string{"title=Scene one"}
	mustOK(t, run(t, newCmd, "note", "main/art/scene"), &res)
	newSetFlags = nil
	if res.Path != "main/art/scene.note" {
		t.Fatalf("new path = %q", res.Path)
	}

	mustOK(t, run(t, setCmd, "main/art/scene.note", "tags=[a, b]"), nil)
	var cat catResult
	mustOK(t, run(t, catCmd, "main/art/scene.note"), &cat)
	if !strings.Contains(cat.Text, "Scene one") {
		t.Errorf("cat text missing title:\n%s", cat.Text)
	}

	mustOK(t, run(t, mkdirCmd, "other"), nil)
	mustOK(t, run(t, mvCmd, "main/art", "other"), &res)
	if res.Path != "other/art" || res.OldPath != "main/art" {
		t.Fatalf("mv = %+v", res)
	}
	if fileExists(dir, "main/art/scene.note") || !fileExists(dir, "other/art/scene.note") {
		t.Error("move did not relocate files")
	}

	mustOK(t, run(t, renameCmd, "other/art/scene.note", "intro.note"), &res)
	if res.Path != "other/art/intro.note" {
		t.Fatalf("rename path = %q", res.Path)
	}

	mustOK(t, run(t, rmCmd, "other/art"), nil)
	if fileExists(dir, "other/art/.dir") || fileExists(dir, "other/art/intro.note") {
		t.Error("rm left files behind")
	}

	var tree []treeEntry
	mustOK(t, run(t, treeCmd), &tree)
	if len(tree) != 2 || tree[0].Name != "main" || tree[1].Name != "other" {
		t.Fatalf("tree = %+v", tree)
	}
	if len(tree[1].Children) != 0 {
		t.Errorf("other should be empty, got %+v", tree[1].Children)
	}

	var st statusResult
	mustOK(t, run(t, statusCmd), &st)
	if !st.Clean || len(st.Pending) != 0 {
		t.Errorf("status after edits = %+v", st)
	}
	if st.Tombstones != 2 {
		t.Errorf("tombstones = %d, want 2", st.Tombstones)
	}
}

func TestSaveAfterFileRemovedOutsideKiln(t *testing.T) {
	dir := newTestVault(t)
	mustOK(t, run(t, mkdirCmd, "main"), nil)
	mustOK(t, run(t, newCmd, "note", "main/readme"), nil)
	if err := os.Remove(filepath.Join(dir, "main", "readme.note")); err != nil {
		t.Fatal(err)
	}

	resp := run(t, saveCmd)
	var res vault.SaveResult
	mustOK(t, resp, &res)
	if len(resp.Warnings) != 1 || resp.Warnings[0].Code != ErrFileMissing || resp.Warnings[0].Path != "main/.root" {
		t.Errorf("warnings = %+v, want one FILE_MISSING on main/.root", resp.Warnings)
	}
	if len(res.Written) != 1 || res.Written[0] != "main/.root" {
		t.Errorf("written = %v", res.Written)
	}

	resp = run(t, statusCmd)
	var st statusResult
	mustOK(t, resp, &st)
	if !st.Clean || len(resp.Warnings) != 0 {
		t.Errorf("status after save = %+v, warnings %+v", st, resp.Warnings)
	}
}

func TestEditErrors(t *testing.T) {
	newTestVault(t)
	mustOK(t, run(t, mkdirCmd, "main"), nil)

	tests := []struct {
		name string
		cmd  *cobra.Command
		args []string
		code string
	}{
		{name: "missing parent", cmd: mkdirCmd, args: []string{"main/a/b"}, code: ErrObjectNotFound},
		{name: "unknown type", cmd: newCmd, args: []string{"widget", "main/w"}, code: ErrTypeNotFound},
		{name: "asset at top level", cmd: newCmd, args: []string{"note", "loose"}, code: ErrInvalidInput},
		{name: "move root", cmd: mvCmd, args: []string{"main", "main"}, code: ErrInvalidInput},
		{name: "unknown node", cmd: rmCmd, args: []string{"nope"}, code: ErrObjectNotFound},
		{name: "set on root", cmd: setCmd, args: []string{"main", "title=x"}, code: ErrInvalidInput},
		{name: "bad set", cmd: setCmd, args: []string{"main", "title"}, code: ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := run(t, tt.cmd, tt.args...)
			if resp.OK {
				t.Fatal("expected error")
			}
			if resp.Error.Code != tt.code {
				t.Errorf("code = %s, want %s (%s)", resp.Error.Code, tt.code, resp.Error.Message)
			}
		})
	}
}

func TestMkdirParents(t *testing.T) {
	dir := newTestVault(t)
	prev := mkdirParentsFlag
	t.Cleanup(func() { mkdirParentsFlag = prev })
	mkdirParentsFlag = true

	var res editResult
	mustOK(t, run(t, mkdirCmd, "main/a/b"), &res)
	if res.Path != "main/a/b" {
		t.Fatalf("path = %q", res.Path)
	}
	for _, rel := range []string{"main/.root", "main/a/.dir", "main/a/b/.dir"} {
		if !fileExists(dir, rel) {
			t.Errorf("%s not written", rel)
		}
	}
}

func TestAttachAndCatBuffer(t *testing.T) {
	dir := newTestVault(t)
	mustOK(t, run(t, mkdirCmd, "main"), nil)
	mustOK(t, run(t, newCmd, "texture", "main/brick"), nil)

	src := filepath.Join(t.TempDir(), "brick.raw")
	payload := bytes.Repeat([]byte{1, 2, 3, 4}, 64)
	if err := os.WriteFile(src, payload, 0o644); err != nil {
		t.Fatal(err)
	}

	var att attachResult
	mustOK(t, run(t, attachCmd, "main/brick.tex", "pixels", src), &att)
	if att.Bytes != len(payload) || len(att.Buffer) != 16 {
		t.Fatalf("attach = %+v", att)
	}
	if resp := run(t, attachCmd, "main/brick.tex", "title", src); resp.OK || resp.Error.Code != ErrTypeMismatch {
		t.Errorf("attach to value field = %+v", resp)
	}

	prev := catBufferFlag
	t.Cleanup(func() { catBufferFlag = prev })
	catBufferFlag = "pixels"
	jsonOutput = false
	out := captureStdout(t, func() {
		if err := catCmd.RunE(catCmd, []string{"main/brick.tex"}); err != nil {
			t.Errorf("cat --buffer: %v", err)
		}
	})
	if out != string(payload) {
		t.Errorf("buffer contents differ: got %d bytes", len(out))
	}
	if !fileExists(dir, ".kiln/buffers") {
		t.Error("buffer store not created")
	}
}

func TestCatRender(t *testing.T) {
	newTestVault(t)
	mustOK(t, run(t, mkdirCmd, "main"), nil)
	newSetFlags = []string{"title=Readme", "body=# Hello\n\nSome *text*."}
	mustOK(t, run(t, newCmd, "note", "main/readme"), nil)
	newSetFlags = nil

	prev := catRenderFlag
	t.Cleanup(func() { catRenderFlag = prev })
	catRenderFlag = true

	var res catResult
	mustOK(t, run(t, catCmd, "main/readme.note"), &res)
	got := map[string]string{}
	for _, f := range res.Fields {
		got[f.Name] = f.Value
	}
	if got["title"] != `"Readme"` {
		t.Errorf("title = %q", got["title"])
	}
	if got["body"] != "# Hello\n\nSome *text*." {
		t.Errorf("body = %q", got["body"])
	}
}

func TestTypes(t *testing.T) {
	newTestVault(t)
	var infos []typeInfo
	mustOK(t, run(t, typesCmd), &infos)
	byName := map[string]typeInfo{}
	for _, ti := range infos {
		byName[ti.Name] = ti
	}
	tex, ok := byName["texture"]
	if !ok {
		t.Fatalf("texture type missing: %+v", infos)
	}
	if tex.Extension != "tex" {
		t.Errorf("texture extension = %q", tex.Extension)
	}
	var pixels typeField
	for _, f := range tex.Fields {
		if f.Name == "pixels" {
			pixels = f
		}
	}
	if pixels.Kind != "stream" {
		t.Errorf("pixels = %+v", pixels)
	}
	if _, ok := byName["root"]; ok {
		t.Error("builtin types should not be listed")
	}
}

func TestSaveListsHandWrittenAsset(t *testing.T) {
	dir := newTestVault(t)
	mustOK(t, run(t, mkdirCmd, "main"), nil)

	stray := `{
	_uuid: "11111111-1111-1111-1111-111111111111"
	_type: "asset"
	name: "stray"
	extension: "note"
	object: {
		_uuid: "22222222-2222-2222-2222-222222222222"
		_type: "note"
		title: "hello"
	}
}
`
	if err := os.WriteFile(filepath.Join(dir, "main", "stray.note"), []byte(stray), 0o644); err != nil {
		t.Fatal(err)
	}

	var st statusResult
	mustOK(t, run(t, statusCmd), &st)
	if st.Clean || len(st.Pending) != 1 || st.Pending[0].Path != "main/.root" {
		t.Fatalf("status = %+v, want the root pending", st)
	}

	var res vault.SaveResult
	mustOK(t, run(t, saveCmd), &res)
	if len(res.Written) != 1 || res.Written[0] != "main/.root" {
		t.Errorf("written = %v", res.Written)
	}
	mustOK(t, run(t, statusCmd), &st)
	if !st.Clean {
		t.Errorf("status after save = %+v", st)
	}
}

func TestInitCreatesGitignore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vault")
	prevJSON, prevRoot := jsonOutput, initRootFlag
	t.Cleanup(func() { jsonOutput, initRootFlag = prevJSON, prevRoot })
	jsonOutput = true
	initRootFlag = "main"

	var res initResult
	mustOK(t, run(t, initCmd, dir), &res)
	if !res.CreatedConfig || !res.CreatedTypes || res.Gitignore != "created" || res.Root != "main" {
		t.Fatalf("init = %+v", res)
	}
	if !fileExists(dir, "main/.root") {
		t.Error("root file not written")
	}

	initRootFlag = ""
	mustOK(t, run(t, initCmd, dir), &res)
	if res.CreatedConfig || res.CreatedTypes || res.Gitignore != "kept" {
		t.Errorf("second init = %+v", res)
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{vault.ErrNotVault, ErrVaultNotFound},
		{vault.ErrNotFound, ErrObjectNotFound},
		{io.EOF, ErrInternal},
	}
	for _, tt := range tests {
		if got := errorCode(tt.err); got != tt.want {
			t.Errorf("errorCode(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
