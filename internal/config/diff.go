package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// SourceChanged and AnalysisChanged require the analyzer to be rebuilt.
	SourceChanged   bool
	AnalysisChanged bool

	// ServerChanged is reported but not applied while running.
	ServerChanged bool
}

// RestartRequired reports whether the analyzer must be stopped and rebuilt
// to apply the diff.
func (d ConfigDiff) RestartRequired() bool {
	return d.SourceChanged || d.AnalysisChanged
}

// Empty reports whether nothing changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.RestartRequired() && !d.ServerChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Server.ListenAddr != new.Server.ListenAddr || !reflect.DeepEqual(old.Server.TLS, new.Server.TLS) {
		d.ServerChanged = true
	}
	d.SourceChanged = !reflect.DeepEqual(old.Source, new.Source)
	// Compare the effective settings so spelling out a default is not a change.
	d.AnalysisChanged = old.Analysis.ToAnalysis() != new.Analysis.ToAnalysis()
	return d
}
