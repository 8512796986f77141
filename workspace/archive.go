package workspace

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/justapithecus/resourcedriver/rderr"
)

// ArchiveConfig configures where released trees are archived before
// deletion, grounded on the teacher's S3Config (lode/client_s3.go) minus
// the Hive dataset layout, which has no analog here: a released tree is
// a single object, not a partitioned event stream.
type ArchiveConfig struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

func (c ArchiveConfig) enabled() bool {
	return c.Bucket != ""
}

// Archiver re-zips a tree and uploads it to S3 before the janitor
// deletes it from local disk, so released driver-files remain available
// for post-hoc debugging.
type Archiver struct {
	cfg    ArchiveConfig
	client *s3.Client
}

// NewArchiver constructs an Archiver. Returns a nil *Archiver with no
// error if cfg has no bucket configured: archival is optional (spec §6).
func NewArchiver(ctx context.Context, cfg ArchiveConfig) (*Archiver, error) {
	if !cfg.enabled() {
		return nil, nil
	}

	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, rderr.New(rderr.ErrInvalidConfig, "archiver.load_aws_config", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &Archiver{cfg: cfg, client: s3.NewFromConfig(awsConfig, s3Opts...)}, nil
}

// Archive zips tree's contents in memory and uploads the archive under
// <prefix>/<treeName>.zip.
func (a *Archiver) Archive(ctx context.Context, treeName string, tree *DirectoryTree) error {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	err := filepath.WalkDir(tree.Root(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(tree.Root(), path)
		if err != nil {
			return err
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(w, src)
		return err
	})
	if err != nil {
		return rderr.New(rderr.ErrResourceDriverError, "archiver.zip", err)
	}
	if err := zw.Close(); err != nil {
		return rderr.New(rderr.ErrResourceDriverError, "archiver.zip_close", err)
	}

	key := strings.TrimPrefix(fmt.Sprintf("%s/%s.zip", strings.TrimSuffix(a.cfg.Prefix, "/"), treeName), "/")
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(buf.Bytes()),
	})
	if err != nil {
		return rderr.New(rderr.ErrResourceDriverError, "archiver.put_object", err)
	}
	return nil
}

// Janitor periodically sweeps a workspace root for trees older than TTL
// and archives+removes them, as a backstop for trees whose owning
// request never reached a terminal disposition (crash, lost redelivery).
type Janitor struct {
	mgr      *Manager
	archiver *Archiver
	interval time.Duration
	ttl      time.Duration
}

// NewJanitor constructs a Janitor. archiver may be nil, in which case
// swept trees are deleted without archival.
func NewJanitor(mgr *Manager, archiver *Archiver, interval, ttl time.Duration) *Janitor {
	return &Janitor{mgr: mgr, archiver: archiver, interval: interval, ttl: ttl}
}

// Run sweeps on a ticker until ctx is canceled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweepOnce(ctx)
		}
	}
}

func (j *Janitor) sweepOnce(ctx context.Context) {
	entries, err := filepath.Glob(filepath.Join(j.mgr.root, "*"))
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-j.ttl)
	for _, path := range entries {
		info, err := os.Stat(path)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		treeName := filepath.Base(path)
		if j.archiver != nil {
			_ = j.archiver.Archive(ctx, treeName, &DirectoryTree{root: path})
		}
		_ = (&DirectoryTree{root: path}).Release()
	}
}
