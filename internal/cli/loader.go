package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/token"

	"github.com/roach88/x3drouter/internal/compiler"
	"github.com/roach88/x3drouter/internal/ir"
)

// SceneLoad is a compiled scene and the source it came from.
type SceneLoad struct {
	Path      string
	Spec      *ir.SceneSpec
	Hash      string // ir.SceneHash of the source bytes
	FileCount int    // Number of CUE files read
}

// LoadError represents an error that occurred during scene loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// LoadScene compiles the scene at path: a single .cue file, or a
// directory whose .cue files form one scene. Every error is a *LoadError.
func LoadScene(path string) (*SceneLoad, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("scene not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing scene: %v", err)}
	}

	result := &SceneLoad{Path: path}
	var src []byte

	if info.IsDir() {
		files, err := compiler.FindCUEFiles(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
		}
		if len(files) == 0 {
			return nil, &LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", path)}
		}
		// The hash covers every file in lexical order.
		var buf bytes.Buffer
		for _, f := range files {
			data, err := os.ReadFile(f)
			if err != nil {
				return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", f, err)}
			}
			buf.Write(data)
		}
		src = buf.Bytes()
		result.FileCount = len(files)

		result.Spec, err = compiler.Load(path)
		if err != nil {
			return nil, convertCompileError(err, path)
		}
	} else {
		src, err = os.ReadFile(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading scene: %v", err)}
		}
		result.FileCount = 1

		result.Spec, err = compiler.LoadSource(path, src)
		if err != nil {
			return nil, convertCompileError(err, path)
		}
		if result.Spec.Name == "" {
			result.Spec.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		}
	}

	result.Hash = ir.SceneHash(src)
	return result, nil
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error, context string) *LoadError {
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    MapFieldToErrorCode(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{
		Code:    ErrCodeLoadFailed,
		Message: fmt.Sprintf("%s: %v", context, err),
	}
}

// Error code constants - unified across all CLI commands.
// Scene validation codes (E1xx) come from compiler.Validate.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeSceneShape  = "E008" // Scene structure error (nodes, routes, interface)
)

// MapFieldToErrorCode maps a compiler error field to an error code.
func MapFieldToErrorCode(field string) string {
	switch {
	case field == "cue":
		return ErrCodeBuildFailed
	case field == "nodes", field == "value",
		strings.HasPrefix(field, "nodes."), strings.HasPrefix(field, "routes"):
		return ErrCodeSceneShape
	default:
		return ErrCodeGeneric
	}
}

// lineOf returns the line of a CUE position, or 0.
func lineOf(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}
