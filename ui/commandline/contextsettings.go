// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spectralrl/goensemble/ml/context"
	"github.com/spectralrl/goensemble/types/xslices"
	"golang.org/x/exp/constraints"
)

// ParseContextSettings from settings, typically the contents of a flag set by the user.
// The settings are a list separated by ";": e.g.: "param1=value1;param2=value2;...".
//
// All the parameters "param1", "param2", etc. must be already set with default values
// in the root scope of `ctx`. The type of the default value is the type the string value is parsed to:
// ints (with "_" allowed as a digits separator, e.g. "1_000_000"), floats, bools, strings and
// comma-separated lists of those.
//
// A parameter can be set in a specific scope with an absolute path: "/critic/ensemble_share_input=false"
// works, as long as a default "ensemble_share_input" is defined in the root scope.
//
// An entry "file:<path>" reads the settings from the file, one or more per line. Lines starting with "#"
// are comments.
//
// It returns the list of parameter paths set, in order, or an error if a parameter is unknown or its
// value could not be parsed.
//
// Example usage:
//
//	func main() {
//		ctx := createDefaultContext()
//		settings := commandline.CreateContextSettingsFlag(ctx, "")
//		flag.Parse()
//		paramsSet, err := commandline.ParseContextSettings(ctx, *settings)
//		if err != nil { ... }
//		fmt.Println(commandline.SprintModifiedContextSettings(ctx, paramsSet))
//		...
//	}
func ParseContextSettings(ctx *context.Context, settings string) (paramsSet []string, err error) {
	for _, setting := range strings.Split(settings, ";") {
		paramsSet, err = parseContextSetting(ctx, strings.TrimSpace(setting), paramsSet)
		if err != nil {
			return
		}
	}
	return
}

// settingsFilePrefix marks a setting that is actually a file with more settings.
const settingsFilePrefix = "file:"

func parseContextSetting(ctx *context.Context, setting string, paramsSet []string) ([]string, error) {
	if setting == "" {
		return paramsSet, nil
	}
	if filePath, isFile := strings.CutPrefix(setting, settingsFilePrefix); isFile {
		return parseSettingsFile(ctx, filePath, paramsSet)
	}

	paramPath, valueStr, found := strings.Cut(setting, "=")
	if !found || strings.Contains(valueStr, "=") {
		return paramsSet, errors.Errorf("can't parse setting %q: each setting requires the format \"<param>=<value>\"", setting)
	}
	paramScope, paramName := context.SplitScope(paramPath)
	if strings.Contains(paramName, context.ScopeSeparator) {
		return paramsSet, errors.Errorf("can't set parameter %q: its scope must be absolute (start with %q)",
			paramPath, context.ScopeSeparator)
	}
	defaultValue, found := ctx.InAbsPath(context.RootScope).GetParam(paramName)
	if !found {
		return paramsSet, errors.Errorf("can't set parameter %q (scope=%q) because the param %q is not known in the root context",
			paramPath, paramScope, paramName)
	}
	value, err := parseValue(defaultValue, valueStr)
	if err != nil {
		return paramsSet, errors.WithMessagef(err, "failed to parse value %q for parameter %q (default value is %#v)",
			valueStr, paramPath, defaultValue)
	}

	ctxInScope := ctx
	if paramScope != "" {
		ctxInScope = ctx.InAbsPath(paramScope)
	}
	ctxInScope.SetParam(paramName, value)
	return append(paramsSet, paramPath), nil
}

// parseSettingsFile parses the settings in the file, where new lines work as ";".
func parseSettingsFile(ctx *context.Context, filePath string, paramsSet []string) ([]string, error) {
	filePath, err := replaceTildeInDir(filePath)
	if err != nil {
		return paramsSet, err
	}
	contents, err := os.ReadFile(filePath)
	if err != nil {
		return paramsSet, errors.Wrapf(err, "failed to read settings from file %q", filePath)
	}
	for _, line := range strings.Split(string(contents), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		for _, setting := range strings.Split(line, ";") {
			paramsSet, err = parseContextSetting(ctx, strings.TrimSpace(setting), paramsSet)
			if err != nil {
				return paramsSet, errors.WithMessagef(err, "in settings file %q", filePath)
			}
		}
	}
	return paramsSet, nil
}

// parseValue parses valueStr to the type of defaultValue.
func parseValue(defaultValue any, valueStr string) (any, error) {
	switch defaultValue.(type) {
	case int:
		return parseInt[int](valueStr)
	case int32:
		return parseInt[int32](valueStr)
	case int64:
		return parseInt[int64](valueStr)
	case uint:
		return parseUint[uint](valueStr)
	case uint32:
		return parseUint[uint32](valueStr)
	case uint64:
		return parseUint[uint64](valueStr)
	case float32:
		return parseFloat[float32](valueStr)
	case float64:
		return parseFloat[float64](valueStr)
	case bool:
		return strconv.ParseBool(valueStr)
	case string:
		return valueStr, nil
	case []string:
		return splitList(valueStr), nil
	case []int:
		return parseList(valueStr, parseInt[int])
	case []int64:
		return parseList(valueStr, parseInt[int64])
	case []float64:
		return parseList(valueStr, parseFloat[float64])
	}
	return nil, errors.Errorf("don't know how to parse type %T", defaultValue)
}

func parseInt[T constraints.Signed](valueStr string) (T, error) {
	v, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(valueStr), "_", ""), 10, 64)
	if err != nil {
		return 0, err
	}
	if int64(T(v)) != v {
		return 0, errors.Errorf("value %d out of range for %T", v, T(0))
	}
	return T(v), nil
}

func parseUint[T constraints.Unsigned](valueStr string) (T, error) {
	v, err := strconv.ParseUint(strings.ReplaceAll(strings.TrimSpace(valueStr), "_", ""), 10, 64)
	if err != nil {
		return 0, err
	}
	if uint64(T(v)) != v {
		return 0, errors.Errorf("value %d out of range for %T", v, T(0))
	}
	return T(v), nil
}

func parseFloat[T constraints.Float](valueStr string) (T, error) {
	var zero T
	bitSize := 64
	if _, isFloat32 := any(zero).(float32); isFloat32 {
		bitSize = 32
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(valueStr), bitSize)
	return T(v), err
}

// parseList parses a comma-separated list with parseFn.
func parseList[T any](valueStr string, parseFn func(string) (T, error)) ([]T, error) {
	var err error
	values := xslices.Map(splitList(valueStr), func(str string) T {
		value, parseErr := parseFn(str)
		if parseErr != nil && err == nil {
			err = parseErr
		}
		return value
	})
	if err != nil {
		return nil, err
	}
	return values, nil
}

// CreateContextSettingsFlag creates a string flag with the given flagName (if empty it will be named
// "set"), whose usage lists the parameters defined in the root scope of `ctx` with their default values.
//
// The flag should be created before the call to `flag.Parse()`, and its value given to ParseContextSettings.
func CreateContextSettingsFlag(ctx *context.Context, flagName string) *string {
	if flagName == "" {
		flagName = "set"
	}
	parts := []string{fmt.Sprintf(
		`Set context parameters defining the model, as a list of "param=value" separated by ";". `+
			`Parameters can be set in a scope with an absolute path, using %q as separator, e.g. "/model/output/param=value". `+
			`An entry "%s<path>" reads the settings from a file, one or more per line, and lines starting with "#" are comments. `+
			`Available parameters:`,
		context.ScopeSeparator, settingsFilePrefix)}
	ctx.EnumerateParams(func(scope, key string, value any) {
		if scope != context.RootScope {
			return
		}
		parts = append(parts, fmt.Sprintf("%q: default value is %v", key, value))
	})
	return flag.String(flagName, "", strings.Join(parts, "\n"))
}

// SprintContextSettings pretty-prints all the hyperparameters of the context, one per line.
func SprintContextSettings(ctx *context.Context) string {
	var parts []string
	ctx.EnumerateParams(func(scope, key string, value any) {
		if scope == context.RootScope {
			scope = ""
		}
		parts = append(parts, fmt.Sprintf("\t\"%s/%s\": (%T) %v", scope, key, value, value))
	})
	return strings.Join(parts, "\n")
}

// SprintModifiedContextSettings pretty-prints only the parameters in paramsSet, as returned by
// ParseContextSettings, sorted and without duplicates.
func SprintModifiedContextSettings(ctx *context.Context, paramsSet []string) string {
	paramsSet = slices.Clone(paramsSet)
	slices.Sort(paramsSet)
	paramsSet = slices.Compact(paramsSet)
	parts := make([]string, 0, len(paramsSet))
	for _, paramPath := range paramsSet {
		paramScope, paramName := context.SplitScope(paramPath)
		if paramScope == "" {
			paramScope = context.RootScope
		}
		value, found := ctx.InAbsPath(paramScope).GetParam(paramName)
		if !found {
			continue
		}
		parts = append(parts, fmt.Sprintf("\t%q: (%T) %v", paramPath, value, value))
	}
	return strings.Join(parts, "\n")
}

// splitList splits a comma-separated list. An empty string is an empty list.
func splitList(valueStr string) []string {
	if valueStr == "" {
		return []string{}
	}
	return strings.Split(valueStr, ",")
}

// replaceTildeInDir expands a leading "~" to the user's home directory.
func replaceTildeInDir(filePath string) (string, error) {
	if filePath != "~" && !strings.HasPrefix(filePath, "~/") {
		return filePath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrapf(err, "failed to expand \"~\" in %q", filePath)
	}
	return filepath.Join(home, strings.TrimPrefix(filePath, "~")), nil
}
