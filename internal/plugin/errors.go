// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Prism Contributors

package plugin

import "github.com/samber/oops"

// Error codes for plugin lifecycle failures.
const (
	CodeInvalidManifest   = "INVALID_MANIFEST"
	CodeUnknownPlugin     = "UNKNOWN_PLUGIN"
	CodeAlreadyLoaded     = "ALREADY_LOADED"
	CodeNotLoaded         = "NOT_LOADED"
	CodeMissingDependency = "MISSING_DEPENDENCY"
	CodeDependencyCycle   = "DEPENDENCY_CYCLE"
	CodeRequiredPlugin    = "REQUIRED_PLUGIN"
	CodeIncompatibleProxy = "INCOMPATIBLE_PROXY"
	CodeInstantiateFailed = "INSTANTIATE_FAILED"
	CodeDuplicatePlugin   = "DUPLICATE_PLUGIN"
)

// ErrInvalidManifest creates an error for a manifest that fails validation.
func ErrInvalidManifest(path string, cause error) error {
	return oops.Code(CodeInvalidManifest).
		With("path", path).
		Wrapf(cause, "invalid plugin manifest at %s", path)
}

// ErrUnknownPlugin creates an error for an id with no discovered plugin.
func ErrUnknownPlugin(id string) error {
	return oops.Code(CodeUnknownPlugin).
		With("plugin", id).
		Errorf("unknown plugin %s", id)
}

// ErrAlreadyLoaded creates an error for loading a loaded plugin.
func ErrAlreadyLoaded(id string) error {
	return oops.Code(CodeAlreadyLoaded).
		With("plugin", id).
		Errorf("plugin %s is already loaded", id)
}

// ErrNotLoaded creates an error for operating on an unloaded plugin.
func ErrNotLoaded(id string) error {
	return oops.Code(CodeNotLoaded).
		With("plugin", id).
		Errorf("plugin %s is not loaded", id)
}

// ErrMissingDependency creates an error for a plugin whose dependency is
// neither loaded nor scheduled in the current batch.
func ErrMissingDependency(id, dependency string) error {
	return oops.Code(CodeMissingDependency).
		With("plugin", id).
		With("dependency", dependency).
		Errorf("plugin %s requires %s, which is not loaded", id, dependency)
}

// ErrDependencyCycle creates an error for a cyclic dependency batch. The
// remaining unsortable ids ride along.
func ErrDependencyCycle(ids []string) error {
	return oops.Code(CodeDependencyCycle).
		With("plugins", ids).
		Errorf("dependency cycle among plugins: %v", ids)
}

// ErrRequiredPlugin creates an error for unloading a required plugin.
func ErrRequiredPlugin(id string) error {
	return oops.Code(CodeRequiredPlugin).
		With("plugin", id).
		Errorf("plugin %s is required and cannot be unloaded", id)
}

// ErrIncompatibleProxy creates an error for a manifest whose requires
// constraint rejects the running proxy version.
func ErrIncompatibleProxy(id, constraint, version string) error {
	return oops.Code(CodeIncompatibleProxy).
		With("plugin", id).
		With("constraint", constraint).
		With("proxy_version", version).
		Errorf("plugin %s requires proxy %s, running %s", id, constraint, version)
}

// ErrInstantiate creates an error for a plugin whose construction failed.
func ErrInstantiate(id string, cause error) error {
	return oops.Code(CodeInstantiateFailed).
		With("plugin", id).
		Wrapf(cause, "instantiating plugin %s", id)
}

// ErrDuplicatePlugin creates an error for an id registered twice.
func ErrDuplicatePlugin(id string) error {
	return oops.Code(CodeDuplicatePlugin).
		With("plugin", id).
		Errorf("plugin %s is already registered", id)
}
