package analysis

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
)

// Result of inspecting one autostart entry.
type Result struct {
	IsMasquerade bool   // content type does not fit the entry's extension
	RealExt      string // type detected from the file header
	DeclaredExt  string // extension from the file name
	RiskLevel    string // HIGH, MEDIUM, SAFE
	Message      string
}

// Inspector checks autostart entries (launch agent plists, .desktop files,
// systemd units, scripts) for binary payloads hiding behind a text
// extension.
type Inspector struct {
	// real type -> declared extensions it may legitimately carry; read-only
	// after NewInspector
	aliasMap map[string]map[string]bool
}

func NewInspector() *Inspector {
	in := &Inspector{aliasMap: make(map[string]map[string]bool)}
	in.initRules()
	return in
}

func (in *Inspector) initRules() {
	allow := func(realType string, exts ...string) {
		if _, ok := in.aliasMap[realType]; !ok {
			in.aliasMap[realType] = make(map[string]bool)
		}
		in.aliasMap[realType][realType] = true
		for _, ext := range exts {
			in.aliasMap[realType][ext] = true
		}
	}

	// Executables are expected without an extension or with their own.
	allow("elf", "", "so", "bin")
	allow("exe", "dll")
	// XML plists and unit files are text wearing their own extension.
	allow("xml", "plist", "desktop", "service", "conf")
	// Compressed man pages and icon bundles do show up next to launch entries.
	allow("gz", "gzip", "tgz")
	allow("png", "icns")
}

// Inspect reads the file header and compares it with the extension.
func (in *Inspector) Inspect(path string) (*Result, error) {
	declared := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	// 262 bytes is enough for every matcher filetype ships.
	head := make([]byte, 262)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if n == 0 {
		return &Result{DeclaredExt: declared, RiskLevel: "SAFE", Message: "Empty file"}, nil
	}

	kind, _ := filetype.Match(head[:n])
	if kind == filetype.Unknown {
		// plists, unit files and scripts are all plain text
		return &Result{RealExt: "unknown", DeclaredExt: declared, RiskLevel: "SAFE", Message: "No binary signature"}, nil
	}

	realExt := kind.Extension
	if realExt == declared {
		return &Result{RealExt: realExt, DeclaredExt: declared, RiskLevel: "SAFE"}, nil
	}

	if in.aliasMap[realExt][declared] {
		return &Result{
			RealExt:     realExt,
			DeclaredExt: declared,
			RiskLevel:   "SAFE",
			Message:     fmt.Sprintf("Allowed alias: %s is compatible with %s", declared, realExt),
		}, nil
	}

	risk := "MEDIUM"
	if isExecutable(realExt) {
		risk = "HIGH"
	}
	return &Result{
		IsMasquerade: true,
		RealExt:      realExt,
		DeclaredExt:  declared,
		RiskLevel:    risk,
		Message:      fmt.Sprintf("Type mismatch: header is '%s' but file is named '.%s'", realExt, declared),
	}, nil
}

func isExecutable(ext string) bool {
	switch ext {
	case "elf", "exe", "dll", "macho", "dex", "wasm":
		return true
	}
	return false
}
