// SPDX-License-Identifier: MPL-2.0

// Package command describes units of work and turns them into literal,
// injection-safe command lines for a chosen isolation tier: a direct host
// invocation, a one-shot docker container, or a single shell-quoted string
// crossing the micro-VM remote-exec boundary.
package command
