// SPDX-License-Identifier: MPL-2.0

package command

import (
	"fmt"
	"regexp"
)

var imagePattern = regexp.MustCompile(`([^:@]+)(?::([^@]+))?(?:@sha256:([a-z0-9]{64}))?`)

// SanitizeImage strips a content-digest suffix from an image reference.
// The micro-VM image puller cannot parse references carrying both a tag and
// a digest, so "name:tag@sha256:<hex>" becomes "name:tag" and
// "name@sha256:<hex>" becomes "name". References that don't match the
// expected shape are returned unchanged: failing here would abort an
// otherwise runnable command.
//
// Known limitation: digest pins are dropped even when the caller pinned by
// digest deliberately, trading reproducibility for a parseable reference.
func SanitizeImage(image string) string {
	if matches := imagePattern.FindStringSubmatch(image); len(matches) == 4 {
		if matches[2] == "" {
			return matches[1]
		}

		return fmt.Sprintf("%s:%s", matches[1], matches[2])
	}

	return image
}
