package config

import "strings"

// CoreFileExt is the extension of core definition files.
const CoreFileExt = ".yaml"

// CoreFileExtensions are all recognized core file extensions
var CoreFileExtensions = []string{".yaml", ".yml"}

// Default file names
const (
	ConfigFileName  = "funcore.yaml"
	LibraryFileName = "library.yaml"
	ReportDBName    = ".funcore/runs.db"
)

// Defaults applied when funcore.yaml leaves a field out.
const (
	DefaultMaxInstanceDepth = 64
	DefaultLogLevel         = "info"
	DefaultServeAddr        = "127.0.0.1:7341"
	DefaultColor            = ColorAuto
)

// LanguageVersion is the version of the core language this build checks.
// Libraries declare the range of versions they accept.
const LanguageVersion = "1.4.0"

// Colour modes for terminal output
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// IsCoreFile reports whether name has a core file extension.
func IsCoreFile(name string) bool {
	for _, ext := range CoreFileExtensions {
		if len(name) > len(ext) && strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}
