package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/GriffinCanCode/ConceptCanvas/internal/domain/compiler"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
)

// DefaultPattern matches component sources
const DefaultPattern = "**/*.{jsx,tsx,js,ts}"

var (
	// ErrNotText is returned for files that are not text
	ErrNotText = errors.New("not a text file")
	// ErrTooLarge is returned for files past the compiler's size limit
	ErrTooLarge = errors.New("source too large")
)

// skipDirs are never descended into
var skipDirs = map[string]bool{
	"node_modules": true,
	"dist":         true,
	"build":        true,
	"vendor":       true,
}

// File is a component source decoded to UTF-8
type File struct {
	Path    string `json:"path"`
	Source  string `json:"-"`
	Charset string `json:"charset"`
	MIME    string `json:"mime"`
	Size    int    `json:"size"`
}

// Load reads one source file. Binary files are rejected and other
// encodings are converted to UTF-8.
func Load(path string) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s: is a directory", path)
	}
	if info.Size() > int64(compiler.MaxSourceBytes)*4 {
		return nil, fmt.Errorf("%s: %w", path, ErrTooLarge)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.Path = path
	return f, nil
}

// Decode converts raw bytes to a File
func Decode(data []byte) (*File, error) {
	mtype := mimetype.Detect(data)
	if !isText(mtype) {
		return nil, fmt.Errorf("%w (%s)", ErrNotText, mtype.String())
	}

	enc := detectCharset(data)
	text := data
	if enc != "utf-8" {
		r, err := charset.NewReaderLabel(enc, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", enc, err)
		}
		if text, err = io.ReadAll(r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", enc, err)
		}
	}
	text = bytes.TrimPrefix(text, []byte("\xef\xbb\xbf"))

	if len(text) > compiler.MaxSourceBytes {
		return nil, ErrTooLarge
	}
	return &File{
		Source:  string(text),
		Charset: enc,
		MIME:    mtype.String(),
		Size:    len(text),
	}, nil
}

// Collect returns the files under root matching any of patterns, sorted.
// A root that is a file is returned as is.
func Collect(ctx context.Context, root string, patterns ...string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}
	if len(patterns) == 0 {
		patterns = []string{DefaultPattern}
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid pattern %q", p)
		}
	}

	var (
		mu      sync.Mutex
		matches []string
	)
	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, root, func(p string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			return nil
		}
		if d.IsDir() {
			name := d.Name()
			if p != root && (skipDirs[name] || strings.HasPrefix(name, ".")) {
				return fastwalk.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		for _, pattern := range patterns {
			if ok, _ := doublestar.Match(pattern, rel); ok {
				mu.Lock()
				matches = append(matches, p)
				mu.Unlock()
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(matches)
	return matches, nil
}

func isText(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/plain") {
			return true
		}
	}
	return false
}

func detectCharset(data []byte) string {
	if isUTF8(data) {
		return "utf-8"
	}
	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result == nil || result.Charset == "" {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

// isUTF8 reports valid UTF-8 that is not UTF-16 behind a byte order mark
func isUTF8(data []byte) bool {
	if bytes.HasPrefix(data, []byte{0xff, 0xfe}) || bytes.HasPrefix(data, []byte{0xfe, 0xff}) {
		return false
	}
	return utf8.Valid(data)
}
