// Command gsync exposes the block hasher, delta resolver and patcher as a
// two-subcommand CLI, in the plain flag.NewFlagSet style the pack's own
// squashfs-delta tool uses.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/pkg/profile"

	"github.com/deltasync/gsync/internal/block"
	"github.com/deltasync/gsync/internal/delta"
	"github.com/deltasync/gsync/internal/gsyncerr"
	"github.com/deltasync/gsync/internal/manifest"
	"github.com/deltasync/gsync/internal/patch"
	"github.com/deltasync/gsync/internal/randio"
	"github.com/deltasync/gsync/internal/strong"
)

func main() {
	if len(os.Args) < 2 {
		printUsageAndExit("missing operation")
	}

	var (
		hashInput, hashOutput            string
		hashBlockSize                    int64
		hashStrongName                   string
		hashThreads                      int
		hashCPUProfile                   string
		syncLocal, syncManifest, syncOut string
		syncThreads                      int
		syncCPUProfile                   string
	)

	hashCmd := flag.NewFlagSet("hash", flag.ExitOnError)
	hashCmd.StringVar(&hashInput, "in", "", "file to hash (required)")
	hashCmd.StringVar(&hashOutput, "out", "", "manifest output path (required)")
	hashCmd.Int64Var(&hashBlockSize, "block-size", 0, "block size in bytes (0 selects the size heuristic)")
	hashCmd.StringVar(&hashStrongName, "strong", "fnv1a64", "strong hash: fnv1a64, sha1, murmur3, sha256")
	hashCmd.IntVar(&hashThreads, "threads", 1, "hashing worker count")
	hashCmd.StringVar(&hashCPUProfile, "cpuprofile", "", "write a CPU profile to this directory")

	syncCmd := flag.NewFlagSet("sync", flag.ExitOnError)
	syncCmd.StringVar(&syncLocal, "local", "", "local file to patch in place (required)")
	syncCmd.StringVar(&syncManifest, "manifest", "", "remote manifest to sync against (required)")
	syncCmd.StringVar(&syncOut, "remote", "", "file holding the remote content the manifest describes (required)")
	syncCmd.IntVar(&syncThreads, "threads", 1, "resolver worker count")
	syncCmd.StringVar(&syncCPUProfile, "cpuprofile", "", "write a CPU profile to this directory")

	hashCmd.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: gsync hash -in FILE -out MANIFEST [options]")
		hashCmd.PrintDefaults()
	}
	syncCmd.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: gsync sync -local FILE -manifest MANIFEST -remote FILE [options]")
		syncCmd.PrintDefaults()
	}

	var err error
	switch os.Args[1] {
	case "hash":
		hashCmd.Parse(os.Args[2:])
		if hashInput == "" || hashOutput == "" {
			hashCmd.Usage()
			log.Fatal("missing required parameters for 'hash'")
		}
		if hashCPUProfile != "" {
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(hashCPUProfile)).Stop()
		}
		err = runHash(hashInput, hashOutput, hashBlockSize, strong.ParseKind(hashStrongName), hashThreads)

	case "sync":
		syncCmd.Parse(os.Args[2:])
		if syncLocal == "" || syncManifest == "" || syncOut == "" {
			syncCmd.Usage()
			log.Fatal("missing required parameters for 'sync'")
		}
		if syncCPUProfile != "" {
			defer profile.Start(profile.CPUProfile, profile.ProfilePath(syncCPUProfile)).Stop()
		}
		err = runSync(syncLocal, syncManifest, syncOut, syncThreads)

	case "--help", "-h":
		printUsageAndExit("")

	default:
		printUsageAndExit(fmt.Sprintf("unrecognised operation: %s", os.Args[1]))
	}

	if err != nil {
		glog.Errorf("gsync: %v", errors.Cause(err))
		log.Fatalf("operation failed: %v", err)
	}
	fmt.Println("operation completed successfully.")
}

func printUsageAndExit(msg string) {
	if msg != "" {
		fmt.Fprintln(os.Stderr, msg)
		fmt.Fprintln(os.Stderr)
	}
	fmt.Fprintln(os.Stderr, "Build or apply a binary delta between a local file and a remote manifest.")
	fmt.Fprintln(os.Stderr, "Operations:")
	fmt.Fprintln(os.Stderr, "\thash: build a block manifest for a file")
	fmt.Fprintln(os.Stderr, "\tsync: resolve and apply a delta against a local file")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "\tgsync hash -in FILE -out MANIFEST")
	fmt.Fprintln(os.Stderr, "\tgsync sync -local FILE -manifest MANIFEST -remote FILE")
	os.Exit(1)
}

func runHash(inPath, outPath string, blockSize int64, kind strong.Kind, threads int) error {
	in, err := os.Open(inPath)
	if err != nil {
		return errors.Wrap(err, "gsync: failed to open input file")
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return errors.Wrap(err, "gsync: failed to stat input file")
	}
	fileSize := fi.Size()

	if blockSize <= 0 {
		blockSize = block.SuggestSize(fileSize)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := time.Now()
	m, err := block.HashFile(ctx, randio.NewOSFile(in), fileSize, block.Options{
		BlockSize: blockSize,
		Threads:   threads,
		Strong:    kind,
	}, nil)
	if err != nil {
		return errors.Wrap(err, "gsync: failed to start hashing")
	}
	built, err := m.Result()
	if err != nil {
		return errors.Wrap(err, "gsync: hashing failed")
	}
	glog.Infof("gsync: hashed %d bytes into %d blocks (block size %d) in %s", fileSize, len(built), blockSize, time.Since(start))

	out, err := os.Create(outPath)
	if err != nil {
		return errors.Wrap(err, "gsync: failed to create manifest output")
	}
	defer out.Close()

	wire := manifest.FromBlockManifest(fileSize, blockSize, built)
	if err := manifest.Encode(out, wire); err != nil {
		return err
	}
	return nil
}

func runSync(localPath, manifestPath, remotePath string, threads int) error {
	mf, err := os.Open(manifestPath)
	if err != nil {
		return errors.Wrap(err, "gsync: failed to open manifest")
	}
	defer mf.Close()

	wire, err := manifest.Decode(mf)
	if err != nil {
		return err
	}
	built, err := wire.ToBlockManifest()
	if err != nil {
		return err
	}

	local, err := os.OpenFile(localPath, os.O_RDWR, 0644)
	if err != nil {
		return errors.Wrap(err, "gsync: failed to open local file")
	}
	defer local.Close()

	localFi, err := local.Stat()
	if err != nil {
		return errors.Wrap(err, "gsync: failed to stat local file")
	}

	remote, err := os.Open(remotePath)
	if err != nil {
		return errors.Wrap(err, "gsync: failed to open remote content file")
	}
	defer remote.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := delta.Resolve(ctx, randio.NewOSFile(local), localFi.Size(), built, delta.Options{
		BlockSize: wire.BlockSize,
		Threads:   threads,
	}, nil)
	if err != nil {
		return errors.Wrap(err, "gsync: failed to start delta resolution")
	}
	dm, err := rt.Result()
	if err != nil {
		return errors.Wrap(err, "gsync: delta resolution failed")
	}

	fetch := func(blockIndex, blockSize int64) ([]byte, error) {
		buf := make([]byte, blockSize)
		n, err := remote.ReadAt(buf, blockIndex*blockSize)
		if err != nil && n == 0 {
			return nil, errors.Wrapf(gsyncerr.ErrShortFetch, "gsync: failed reading remote block %d: %v", blockIndex, err)
		}
		return buf[:n], nil
	}

	return patch.File(ctx, randio.NewOSFile(local), wire.FileSize, wire.BlockSize, dm, fetch, nil)
}
