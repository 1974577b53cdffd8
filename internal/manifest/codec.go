package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Parse decodes a manifest document. Unknown keys are accepted and kept in
// Extensions; missing or mistyped required fields yield ErrInvalid.
func Parse(data []byte) (*Manifest, error) {
	m := &Manifest{}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// fieldError reports the manifest key that failed to decode.
type fieldError struct {
	Field string
	Err   error
}

func (e *fieldError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("missing required field %q", e.Field)
	}
	return fmt.Sprintf("field %q: %v", e.Field, e.Err)
}

func (e *fieldError) Unwrap() error { return e.Err }

// fields is a decoded JSON object whose keys are consumed as they are mapped
// onto typed fields; whatever remains becomes Extensions.
type fields map[string]json.RawMessage

func decodeFields(data []byte) (fields, error) {
	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("expected an object")
	}
	return f, nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func (f fields) take(key string, dst any) error {
	raw, ok := f[key]
	if !ok {
		return nil
	}
	delete(f, key)
	if isNull(raw) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &fieldError{Field: key, Err: err}
	}
	return nil
}

func (f fields) require(key string, dst any) error {
	raw, ok := f[key]
	if !ok || isNull(raw) {
		return &fieldError{Field: key}
	}
	return f.take(key, dst)
}

// rest compacts the remaining keys into an extension map.
func (f fields) rest() map[string][]byte {
	if len(f) == 0 {
		return nil
	}
	ext := make(map[string][]byte, len(f))
	for k, raw := range f {
		var buf bytes.Buffer
		if err := json.Compact(&buf, raw); err != nil {
			buf.Reset()
			buf.Write(raw)
		}
		ext[k] = buf.Bytes()
	}
	return ext
}

func (m *Manifest) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}

	var out Manifest
	steps := []error{
		f.require("version", &out.Version),
		f.require("description", &out.Description),
		f.require("homepage", &out.Homepage),
		f.require("license", &out.License),
		f.take("pre_install", &out.PreInstall),
		f.take("post_install", &out.PostInstall),
		f.take("pre_uninstall", &out.PreUninstall),
		f.take("post_uninstall", &out.PostUninstall),
		f.take("url", &out.URL),
		f.take("hash", &out.Hash),
		f.take("bin", &out.Bin),
		f.take("persist", &out.Persist),
		f.take("shortcuts", &out.Shortcuts),
		f.take("depends", &out.Depends),
		f.take("suggest", &out.Suggest),
		f.take("env_add_path", &out.EnvAddPath),
		f.take("env_set", &out.EnvSet),
		f.take("extract_dir", &out.ExtractDir),
		f.take("extract_to", &out.ExtractTo),
		f.take("innosetup", &out.Innosetup),
		f.take("architecture", &out.Architecture),
		f.take("installer", &out.Installer),
		f.take("uninstaller", &out.Uninstaller),
		f.take("notes", &out.Notes),
		f.take("##", &out.Comments),
	}
	for _, err := range steps {
		if err != nil {
			return err
		}
	}
	if out.Version == "" {
		return &fieldError{Field: "version", Err: fmt.Errorf("must not be empty")}
	}
	out.Extensions = f.rest()
	*m = out
	return nil
}

// object accumulates present fields for encoding. encoding/json sorts map
// keys, so output is deterministic.
type object map[string]any

func (o object) set(key string, v any, present bool) {
	if present {
		o[key] = v
	}
}

func (o object) extend(ext map[string][]byte) {
	for k, raw := range ext {
		if _, taken := o[k]; taken {
			continue
		}
		o[k] = json.RawMessage(raw)
	}
}

func (m Manifest) MarshalJSON() ([]byte, error) {
	o := object{
		"version":     m.Version,
		"description": m.Description,
		"homepage":    m.Homepage,
		"license":     m.License,
	}
	o.set("pre_install", m.PreInstall, m.PreInstall != nil)
	o.set("post_install", m.PostInstall, m.PostInstall != nil)
	o.set("pre_uninstall", m.PreUninstall, m.PreUninstall != nil)
	o.set("post_uninstall", m.PostUninstall, m.PostUninstall != nil)
	o.set("url", m.URL, m.URL != nil)
	o.set("hash", m.Hash, m.Hash != nil)
	o.set("bin", m.Bin, m.Bin != nil)
	o.set("persist", m.Persist, m.Persist != nil)
	o.set("shortcuts", m.Shortcuts, m.Shortcuts != nil)
	o.set("depends", m.Depends, m.Depends != nil)
	o.set("suggest", m.Suggest, m.Suggest != nil)
	o.set("env_add_path", m.EnvAddPath, m.EnvAddPath != nil)
	o.set("env_set", m.EnvSet, m.EnvSet != nil)
	o.set("extract_dir", m.ExtractDir, m.ExtractDir != nil)
	o.set("extract_to", m.ExtractTo, m.ExtractTo != nil)
	o.set("innosetup", m.Innosetup, m.Innosetup != nil)
	o.set("architecture", m.Architecture, m.Architecture != nil)
	o.set("installer", m.Installer, m.Installer != nil)
	o.set("uninstaller", m.Uninstaller, m.Uninstaller != nil)
	o.set("notes", m.Notes, m.Notes != nil)
	o.set("##", m.Comments, m.Comments != nil)
	o.extend(m.Extensions)
	return json.Marshal(o)
}

func (a *ArchSpec) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	var out ArchSpec
	steps := []error{
		f.take("url", &out.URL),
		f.take("hash", &out.Hash),
		f.take("bin", &out.Bin),
		f.take("extract_dir", &out.ExtractDir),
		f.take("shortcuts", &out.Shortcuts),
		f.take("pre_install", &out.PreInstall),
		f.take("post_install", &out.PostInstall),
		f.take("env_add_path", &out.EnvAddPath),
		f.take("env_set", &out.EnvSet),
		f.take("installer", &out.Installer),
		f.take("uninstaller", &out.Uninstaller),
	}
	for _, err := range steps {
		if err != nil {
			return err
		}
	}
	out.Extensions = f.rest()
	*a = out
	return nil
}

func (a ArchSpec) MarshalJSON() ([]byte, error) {
	o := object{}
	o.set("url", a.URL, a.URL != nil)
	o.set("hash", a.Hash, a.Hash != nil)
	o.set("bin", a.Bin, a.Bin != nil)
	o.set("extract_dir", a.ExtractDir, a.ExtractDir != nil)
	o.set("shortcuts", a.Shortcuts, a.Shortcuts != nil)
	o.set("pre_install", a.PreInstall, a.PreInstall != nil)
	o.set("post_install", a.PostInstall, a.PostInstall != nil)
	o.set("env_add_path", a.EnvAddPath, a.EnvAddPath != nil)
	o.set("env_set", a.EnvSet, a.EnvSet != nil)
	o.set("installer", a.Installer, a.Installer != nil)
	o.set("uninstaller", a.Uninstaller, a.Uninstaller != nil)
	o.extend(a.Extensions)
	return json.Marshal(o)
}

func (in *Installer) UnmarshalJSON(data []byte) error {
	f, err := decodeFields(data)
	if err != nil {
		return err
	}
	var out Installer
	steps := []error{
		f.take("file", &out.File),
		f.take("args", &out.Args),
		f.take("keep", &out.Keep),
		f.take("script", &out.Script),
	}
	for _, err := range steps {
		if err != nil {
			return err
		}
	}
	out.Extensions = f.rest()
	*in = out
	return nil
}

func (in Installer) MarshalJSON() ([]byte, error) {
	o := object{}
	o.set("file", in.File, in.File != "")
	o.set("args", in.Args, in.Args != nil)
	o.set("keep", in.Keep, in.Keep != nil)
	o.set("script", in.Script, in.Script != nil)
	o.extend(in.Extensions)
	return json.Marshal(o)
}
