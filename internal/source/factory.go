// SPDX-License-Identifier: AGPL-3.0-or-later

/*
g8r - an infrastructure-automation control plane.

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.
*/

package source

import (
	"fmt"
	"path/filepath"

	"g8r/internal/source/gitsource"
	"g8r/pkg/model"
)

// NewGitFactory builds a stackmgr.SourceFactory backed by gitsource,
// checking each stack's working copy out under workdirRoot/<stack name>.
// stack.SourceType must be "git"; stack.SourceConfig carries "url",
// "branch" and optionally "token".
func NewGitFactory(workdirRoot string) func(stack model.Stack) (Source, error) {
	return func(stack model.Stack) (Source, error) {
		if stack.SourceType != "git" {
			return nil, fmt.Errorf("%w: unsupported source_type %q for stack %q", model.ErrConfig, stack.SourceType, stack.Name)
		}
		url, _ := stack.SourceConfig["url"].(string)
		if url == "" {
			return nil, fmt.Errorf("%w: stack %q source_config is missing \"url\"", model.ErrConfig, stack.Name)
		}
		branch, _ := stack.SourceConfig["branch"].(string)
		if branch == "" {
			branch = "main"
		}
		token, _ := stack.SourceConfig["token"].(string)

		return gitsource.New(gitsource.Config{
			URL:        url,
			Branch:     branch,
			Token:      token,
			LocalPath:  filepath.Join(workdirRoot, stack.Name),
			ConfigFile: stack.ConfigPath,
		}), nil
	}
}
