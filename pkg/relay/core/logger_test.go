package core_test

import "github.com/okdistribute/relay/pkg/relay/relaylog"

// silentLogger discards everything; these tests assert on state and
// written frames, not log output.
type silentLogger struct{}

func newSilentLogger() relaylog.Logger { return silentLogger{} }

func (silentLogger) Info(v ...interface{})                 {}
func (silentLogger) Infof(string, ...interface{})          {}
func (silentLogger) Warn(v ...interface{})                 {}
func (silentLogger) Warnf(string, ...interface{})          {}
func (silentLogger) Error(v ...interface{})                {}
func (silentLogger) Errorf(string, ...interface{})         {}
func (silentLogger) Debug(v ...interface{})                {}
func (silentLogger) Debugf(string, ...interface{})         {}
func (silentLogger) ToggleDebug(enabled bool) bool         { return enabled }
func (l silentLogger) WithFields(relaylog.Fields) relaylog.Logger { return l }
