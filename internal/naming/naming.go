// Package naming turns names supplied by the authoring tool into stable,
// filesystem-safe path segments. It also keeps the older lossy sanitizer
// so layouts written by earlier exporters can still be mapped back.
package naming

import (
	"runtime"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Placeholder replaces names that sanitize to nothing.
const Placeholder = "Unnamed"

// Script file suffixes by class.
const (
	ExtServer = ".server.lua"
	ExtLocal  = ".local.lua"
	ExtModule = ".module.lua"
	ExtPlain  = ".lua"
)

// invalidChars are rejected by Windows, the strictest target.
const invalidChars = `<>:"/\|?*`

// strictFS reports whether the host filesystem forbids trailing dots and
// spaces and reserves device names.
var strictFS = runtime.GOOS == "windows"

var reservedNames = func() map[string]struct{} {
	m := map[string]struct{}{"CON": {}, "PRN": {}, "AUX": {}, "NUL": {}}
	for _, prefix := range []string{"COM", "LPT"} {
		for i := '1'; i <= '9'; i++ {
			m[prefix+string(i)] = struct{}{}
		}
	}

	return m
}()

// SafeName sanitizes a single path segment for the host filesystem.
// It never fails and SafeName(SafeName(s)) == SafeName(s).
// Output meant to be copied between platforms should use SafeNameStrict.
func SafeName(name string) string {
	return sanitize(name, strictFS)
}

// SafeNameStrict sanitizes as if the host were Windows regardless of the
// running platform.
func SafeNameStrict(name string) string {
	return sanitize(name, true)
}

func sanitize(name string, strict bool) string {
	var b strings.Builder

	b.Grow(len(name))

	for _, r := range name {
		if r < 32 || r == 0x7f || strings.ContainsRune(invalidChars, r) {
			continue
		}

		b.WriteRune(r)
	}

	clean := strings.TrimSpace(norm.NFC.String(b.String()))

	if strict {
		clean = strings.TrimSpace(strings.TrimRight(clean, ". "))
	}

	// "." and ".." are directory references on every filesystem.
	if clean == "" || strings.Trim(clean, ".") == "" {
		return Placeholder
	}

	if strict {
		if _, reserved := reservedNames[strings.ToUpper(clean)]; reserved {
			clean = "_" + clean
		}
	}

	return clean
}

// LegacyName is the sanitizer used by earlier exporters: letters, digits,
// '-', '_' and ' ' only. It is lossy and must not be used for new writes.
func LegacyName(name string) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '-' || r == '_' || r == ' ' {
			return r
		}

		return -1
	}, name)

	clean = strings.TrimSpace(clean)
	if clean == "" {
		return Placeholder
	}

	return clean
}

// LegacySegments applies LegacyName to every segment.
func LegacySegments(segments []string) []string {
	out := make([]string, len(segments))
	for i, s := range segments {
		out[i] = LegacyName(s)
	}

	return out
}

// NormalizePath computes the segment sequence for an artifact below its
// service root. Blank raw segments are dropped, a leading segment naming
// the service is removed, and the artifact's own sanitized name is the
// last element exactly once.
func NormalizePath(service string, raw []string, name string) []string {
	safe := SafeName(name)
	safeService := SafeName(service)

	segments := make([]string, 0, len(raw)+1)

	for _, s := range raw {
		if strings.TrimSpace(s) == "" {
			continue
		}

		segments = append(segments, SafeName(s))
	}

	if len(segments) > 0 && strings.EqualFold(segments[0], safeService) {
		segments = segments[1:]
	}

	if len(segments) == 0 {
		return []string{safe}
	}

	last := len(segments) - 1
	if strings.EqualFold(segments[last], safe) {
		segments[last] = safe
	} else {
		segments = append(segments, safe)
	}

	return segments
}

// ScriptExt returns the file suffix for a script class.
func ScriptExt(class string) string {
	switch class {
	case "ModuleScript":
		return ExtModule
	case "LocalScript":
		return ExtLocal
	case "Script":
		return ExtServer
	default:
		return ExtPlain
	}
}

// IsScriptFile reports whether a filename carries a script suffix.
func IsScriptFile(filename string) bool {
	return strings.HasSuffix(strings.ToLower(filename), ExtPlain)
}

// ClassFromFilename infers the script class from its suffix. Plain .lua
// files are treated as ModuleScripts.
func ClassFromFilename(filename string) string {
	lower := strings.ToLower(filename)

	switch {
	case strings.HasSuffix(lower, ExtServer):
		return "Script"
	case strings.HasSuffix(lower, ExtLocal):
		return "LocalScript"
	default:
		return "ModuleScript"
	}
}

// ScriptNameFromFilename strips the script suffix from a filename.
func ScriptNameFromFilename(filename string) string {
	lower := strings.ToLower(filename)

	for _, ext := range []string{ExtServer, ExtLocal, ExtModule, ExtPlain} {
		if strings.HasSuffix(lower, ext) {
			return filename[:len(filename)-len(ext)]
		}
	}

	return filename
}
