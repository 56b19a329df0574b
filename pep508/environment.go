// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package pep508 implements PEP 508 dependency specifications
(https://www.python.org/dev/peps/pep-0508/): requirement strings such as

	requests[security] >=2.8.1, ==2.8.* ; python_version < "3.11"

including the environment marker expression language. Markers are parsed
once and evaluated against a caller-supplied Environment, so a single
parsed requirement can be asked about any target interpreter or platform.
*/
package pep508

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Environment holds the PEP 508 environment marker variables describing a
// target Python interpreter and platform. The yaml tags follow the marker
// variable names themselves, so an environment descriptor file reads:
//
//	python_version: "3.11"
//	python_full_version: "3.11.4"
//	sys_platform: linux
type Environment struct {
	OSName                string `yaml:"os_name"`
	SysPlatform           string `yaml:"sys_platform"`
	PlatformMachine       string `yaml:"platform_machine"`
	PlatformPythonImpl    string `yaml:"platform_python_implementation"`
	PlatformRelease       string `yaml:"platform_release"`
	PlatformSystem        string `yaml:"platform_system"`
	PlatformVersion       string `yaml:"platform_version"`
	PythonVersion         string `yaml:"python_version"`
	PythonFullVersion     string `yaml:"python_full_version"`
	ImplementationName    string `yaml:"implementation_name"`
	ImplementationVersion string `yaml:"implementation_version"`
}

// DefaultEnvironment returns marker variable values for a generic modern
// CPython on Linux. Callers resolving for a specific target should supply
// their own Environment.
func DefaultEnvironment() *Environment {
	return &Environment{
		OSName:                "posix",
		SysPlatform:           "linux",
		PlatformMachine:       "x86_64",
		PlatformPythonImpl:    "CPython",
		PlatformRelease:       "",
		PlatformSystem:        "Linux",
		PlatformVersion:       "",
		PythonVersion:         "3.11",
		PythonFullVersion:     "3.11.4",
		ImplementationName:    "cpython",
		ImplementationVersion: "3.11.4",
	}
}

// ReadEnvironment reads a YAML environment descriptor.
// Unknown keys are rejected to catch misspelled variable names.
func ReadEnvironment(r io.Reader) (*Environment, error) {
	env := new(Environment)
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(env); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	return env, nil
}

// lookup returns the value of the named marker variable. The "extra"
// pseudo-variable is not an environment property and is handled by marker
// evaluation directly.
func (e *Environment) lookup(name string) (string, bool) {
	switch name {
	case "os_name":
		return e.OSName, true
	case "sys_platform":
		return e.SysPlatform, true
	case "platform_machine":
		return e.PlatformMachine, true
	case "platform_python_implementation":
		return e.PlatformPythonImpl, true
	case "platform_release":
		return e.PlatformRelease, true
	case "platform_system":
		return e.PlatformSystem, true
	case "platform_version":
		return e.PlatformVersion, true
	case "python_version":
		return e.PythonVersion, true
	case "python_full_version":
		return e.PythonFullVersion, true
	case "implementation_name":
		return e.ImplementationName, true
	case "implementation_version":
		return e.ImplementationVersion, true
	}
	return "", false
}
