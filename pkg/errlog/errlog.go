/*
Copyright 2018 Heptio Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package errlog centralizes how cloudctl logs errors: terse by default,
// with a stack trace when debug output is requested.
package errlog

import (
	"fmt"
	"io"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
)

var (
	// DebugOutput controls whether to output the trace of every error.
	DebugOutput = false

	// LogLevel is the configured logrus level, kept around for flags that want to print it.
	LogLevel logLevelFlagType = "info"
)

type logLevelFlagType string

func (l *logLevelFlagType) String() string { return string(*l) }
func (l *logLevelFlagType) Type() string   { return "level" }
func (l *logLevelFlagType) Set(str string) error {
	*l = logLevelFlagType(str)
	return SetLevel(str)
}

// SetLevel configures the global logrus level from a string flag value.
func SetLevel(s string) error {
	if DebugOutput {
		LogLevel = "debug"
	}
	switch s {
	case "panic":
		logrus.SetLevel(logrus.PanicLevel)
	case "fatal":
		logrus.SetLevel(logrus.FatalLevel)
	case "error":
		logrus.SetLevel(logrus.ErrorLevel)
	case "warn":
		logrus.SetLevel(logrus.WarnLevel)
	case "info":
		logrus.SetLevel(logrus.InfoLevel)
	case "debug":
		logrus.SetLevel(logrus.DebugLevel)
		DebugOutput = true
	case "trace":
		logrus.SetLevel(logrus.TraceLevel)
		DebugOutput = true
	default:
		return fmt.Errorf("unknown log level %q", s)
	}
	return nil
}

// AddFileHook tees every log entry to w in addition to whatever output logrus
// is already configured with. Used by `--log-file` on the root command.
func AddFileHook(w io.Writer) {
	logrus.AddHook(lfshook.NewHook(
		lfshook.WriterMap{
			logrus.PanicLevel: w,
			logrus.FatalLevel: w,
			logrus.ErrorLevel: w,
			logrus.WarnLevel:  w,
			logrus.InfoLevel:  w,
			logrus.DebugLevel: w,
			logrus.TraceLevel: w,
		},
		&logrus.TextFormatter{DisableColors: true, FullTimestamp: true},
	))
}

// LogError logs an error, optionally with a stack trace.
func LogError(err error) {
	if DebugOutput {
		logrus.WithField("trace", fmt.Sprintf("%+v", err)).Error(err)
	} else {
		logrus.Error(err.Error())
	}
}
