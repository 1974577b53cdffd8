package config

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/ZebulonRouseFrantzich/scoopie/internal/platform"
)

// Parser represents a Lua config parser with platform detection.
type Parser struct {
	detector platform.Detector
}

// NewParser creates a new config parser with the given platform detector.
// A nil detector skips the platform table.
func NewParser(detector platform.Detector) *Parser {
	return &Parser{detector: detector}
}

// ParseFile reads and evaluates the config file at path.
func (p *Parser) ParseFile(ctx context.Context, path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if info.Size() > MaxConfigSize {
		return nil, &ParseError{
			Message: "config file too large",
			Detail:  fmt.Sprintf("%s is %d bytes, maximum is %d", path, info.Size(), MaxConfigSize),
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return p.ParseString(ctx, string(data))
}

// ParseString evaluates Lua config code. Paths in the result are returned
// as written; Load expands and defaults them.
func (p *Parser) ParseString(ctx context.Context, luaCode string) (*Config, error) {
	L := newSandboxedVM()
	defer L.Close()

	if p.detector != nil {
		platformInfo, err := p.detector.Detect(ctx)
		if err != nil {
			return nil, fmt.Errorf("platform detection failed: %w", err)
		}
		if err := platform.InjectPlatformTable(L, platformInfo); err != nil {
			return nil, fmt.Errorf("inject platform table: %w", err)
		}
	}

	L.SetContext(ctx)
	if err := L.DoString(luaCode); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("config evaluation cancelled: %w", ctxErr)
		}
		return nil, &ParseError{
			Message: "Lua syntax error",
			Detail:  err.Error(),
		}
	}

	return extractConfig(L)
}

// ParseError represents a config parsing error with friendly message.
type ParseError struct {
	Message string // User-friendly message
	Detail  string // Technical details (raw Lua error)
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Message, e.Detail)
}

// extractConfig reads the global "scoopie" table. Absent fields keep their
// defaults; present fields of the wrong type are a ValidationError.
func extractConfig(L *lua.LState) (*Config, error) {
	config := Default()

	global := L.GetGlobal(luaGlobalScoopie)
	switch global.Type() {
	case lua.LTNil:
		return config, nil
	case lua.LTTable:
	default:
		return nil, &ParseError{
			Message: "invalid 'scoopie' table",
			Detail:  fmt.Sprintf("expected table, got %s", global.Type()),
		}
	}
	table := global.(*lua.LTable)

	steps := []error{
		extractString(table, luaFieldCacheDir, "", &config.cacheDir),
		extractString(table, luaFieldBucketsDir, "", &config.bucketsDir),
		extractString(table, luaFieldLogLevel, "", &config.LogLevel),
		extractString(table, luaFieldKeyring, "", &config.Keyring),
	}
	for _, err := range steps {
		if err != nil {
			return nil, err
		}
	}

	if downloadVal := table.RawGetString(luaFieldDownload); downloadVal.Type() != lua.LTNil {
		downloadTable, ok := downloadVal.(*lua.LTable)
		if !ok {
			return nil, typeError(luaFieldDownload, "table", downloadVal)
		}
		if err := extractDownload(downloadTable, &config.Download); err != nil {
			return nil, err
		}
	}

	if bucketsVal := table.RawGetString(luaFieldBuckets); bucketsVal.Type() != lua.LTNil {
		bucketsTable, ok := bucketsVal.(*lua.LTable)
		if !ok {
			return nil, typeError(luaFieldBuckets, "table", bucketsVal)
		}
		buckets, err := extractBuckets(bucketsTable)
		if err != nil {
			return nil, err
		}
		config.Buckets = buckets
	}

	config.LogLevel = strings.ToLower(config.LogLevel)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func extractDownload(table *lua.LTable, opts *DownloadOptions) error {
	prefix := luaFieldDownload + "."
	steps := []error{
		extractInt(table, luaFieldMaxRetries, prefix, &opts.MaxRetries),
		extractInt(table, luaFieldConcurrent, prefix, &opts.ConcurrentDownloads),
		extractBool(table, luaFieldVerify, prefix, &opts.Verify),
	}
	for _, err := range steps {
		if err != nil {
			return err
		}
	}
	return nil
}

// extractBuckets reads a name = url map. Platform conditionals may leave
// nil values, which are skipped.
func extractBuckets(table *lua.LTable) ([]Bucket, error) {
	var buckets []Bucket
	var firstErr error
	table.ForEach(func(key, value lua.LValue) {
		if firstErr != nil || value.Type() == lua.LTNil {
			return
		}
		name, ok := key.(lua.LString)
		if !ok {
			firstErr = &ValidationError{Field: luaFieldBuckets, Message: "bucket names must be strings"}
			return
		}
		remote, ok := value.(lua.LString)
		if !ok {
			firstErr = typeError(luaFieldBuckets+"."+string(name), "string", value)
			return
		}
		buckets = append(buckets, Bucket{Name: string(name), URL: string(remote)})
	})
	if firstErr != nil {
		return nil, firstErr
	}

	c := Config{Buckets: buckets}
	c.sortBuckets()
	return c.Buckets, nil
}

func extractString(table *lua.LTable, field, prefix string, dst *string) error {
	v := table.RawGetString(field)
	switch v := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LString:
		*dst = string(v)
		return nil
	default:
		return typeError(prefix+field, "string", v)
	}
}

func extractInt(table *lua.LTable, field, prefix string, dst *int) error {
	v := table.RawGetString(field)
	switch v := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LNumber:
		f := float64(v)
		if f != math.Trunc(f) {
			return &ValidationError{Field: prefix + field, Message: fmt.Sprintf("expected an integer, got %v", f)}
		}
		*dst = int(f)
		return nil
	default:
		return typeError(prefix+field, "number", v)
	}
}

func extractBool(table *lua.LTable, field, prefix string, dst *bool) error {
	v := table.RawGetString(field)
	switch v := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		*dst = bool(v)
		return nil
	default:
		return typeError(prefix+field, "boolean", v)
	}
}

func typeError(field, want string, got lua.LValue) error {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("expected %s, got %s", want, got.Type()),
	}
}

// FormatError formats a config error for user display.
// In verbose mode, show the raw Lua error. Otherwise, show friendly message.
func FormatError(err error, verbose bool) string {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		if verbose {
			return fmt.Sprintf("%s\n\nDetails:\n%s", parseErr.Message, parseErr.Detail)
		}
		detail := parseErr.Detail
		if idx := strings.Index(detail, "stack traceback"); idx > 0 {
			detail = strings.TrimSpace(detail[:idx])
		}
		return fmt.Sprintf("%s: %s", parseErr.Message, detail)
	}
	return err.Error()
}
