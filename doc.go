// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package gsync implements a binary delta-synchronization engine in the
// rsync/zsync tradition: given a remote file's block manifest and a local
// file believed to share content with it, it resolves a minimal-fetch plan
// and patches the local file in place to match the remote content exactly.
//
// The algorithmic core lives under internal/ as five components:
// internal/rolling (the Adler-32-style rolling checksum), internal/strong
// (pluggable strong hashes), internal/block (manifest construction),
// internal/delta (the two-stage weak/strong resolver) and internal/patch
// (the in-place patcher). This package is a thin facade wiring them
// together, plus a smaller streaming surface (Checksums/LookUpTable/Sync/
// Apply) closer to the library's original channel-based API for callers
// who'd rather drive the pipeline themselves block by block.
package gsync

import "github.com/deltasync/gsync/internal/block"

// DefaultBlockSize is the fixed block size of the streaming
// Checksums/LookUpTable/Sync/Apply surface. It is not applied to Options:
// HashFile and ResolveDelta reject a zero Options.BlockSize.
const DefaultBlockSize = block.DefaultBlockSize
