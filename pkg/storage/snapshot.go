package storage

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoSnapshot 前缀下没有任何快照
var ErrNoSnapshot = errors.New("no snapshot found")

const snapshotExt = ".tar.gz"

// Snapshotter 将索引目录打包归档到对象存储
type Snapshotter struct {
	store  Storage
	prefix string
	keep   int // 保留的快照个数，0表示全部保留
}

// NewSnapshotter 创建快照管理器
func NewSnapshotter(store Storage, prefix string, keep int) *Snapshotter {
	return &Snapshotter{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		keep:   keep,
	}
}

// snapshotKey 键名以UTC时间开头，字典序即时间顺序
func (s *Snapshotter) snapshotKey(label string, now time.Time) string {
	name := now.UTC().Format("20060102T150405.000000000Z")
	if label != "" {
		name += "-" + label
	}
	return path.Join(s.prefix, name+snapshotExt)
}

// Snapshot 打包目录中的常规文件并上传，随后清理过旧的快照
func (s *Snapshotter) Snapshot(ctx context.Context, dir, label string) (ObjectInfo, error) {
	var buf bytes.Buffer
	if err := writeArchive(&buf, dir); err != nil {
		return ObjectInfo{}, fmt.Errorf("failed to archive %s: %w", dir, err)
	}

	key := s.snapshotKey(label, time.Now())
	info, err := s.store.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		return ObjectInfo{}, err
	}

	if err := s.prune(ctx); err != nil {
		return info, fmt.Errorf("snapshot saved but pruning failed: %w", err)
	}
	return info, nil
}

// List 按时间顺序列出快照
func (s *Snapshotter) List(ctx context.Context) ([]ObjectInfo, error) {
	prefix := s.prefix
	if prefix != "" {
		prefix += "/"
	}
	objects, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}

	snapshots := objects[:0]
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, snapshotExt) {
			snapshots = append(snapshots, obj)
		}
	}
	return snapshots, nil
}

// Latest 返回最新的快照
func (s *Snapshotter) Latest(ctx context.Context) (ObjectInfo, error) {
	snapshots, err := s.List(ctx)
	if err != nil {
		return ObjectInfo{}, err
	}
	if len(snapshots) == 0 {
		return ObjectInfo{}, ErrNoSnapshot
	}
	return snapshots[len(snapshots)-1], nil
}

// Restore 将快照解压到目录，已有同名文件会被覆盖
func (s *Snapshotter) Restore(ctx context.Context, key, dir string) error {
	reader, err := s.store.Get(ctx, key)
	if err != nil {
		return err
	}
	defer reader.Close()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create restore directory: %w", err)
	}
	return readArchive(reader, dir)
}

func (s *Snapshotter) prune(ctx context.Context) error {
	if s.keep <= 0 {
		return nil
	}
	snapshots, err := s.List(ctx)
	if err != nil {
		return err
	}
	for i := 0; i < len(snapshots)-s.keep; i++ {
		if err := s.store.Delete(ctx, snapshots[i].Key); err != nil {
			return err
		}
	}
	return nil
}

// writeArchive 只打包目录顶层的常规文件，跳过临时文件
func writeArchive(w io.Writer, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		if err := tw.WriteHeader(header); err != nil {
			return err
		}

		f, err := os.Open(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		_, err = io.Copy(tw, f)
		f.Close()
		if err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return gz.Close()
}

func readArchive(r io.Reader, dir string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("invalid snapshot archive: %w", err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("invalid snapshot archive: %w", err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		name := filepath.Base(header.Name)
		if name != header.Name || name == "." || name == ".." {
			return fmt.Errorf("invalid entry in snapshot archive: %q", header.Name)
		}

		f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		_, err = io.Copy(f, tr)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
}
