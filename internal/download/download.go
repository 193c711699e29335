// Package download fetches a Chromium snapshot and the chromedriver built
// with it from the public chromium-browser-snapshots bucket.
package download

import (
	"archive/zip"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
)

const (
	// Bucket URL: https://console.cloud.google.com/storage/browser/chromium-browser-snapshots
	Bucket         = "chromium-browser-snapshots"
	Platform       = "Linux_x64"
	ChromeArchive  = "chrome-linux.zip"
	DriverArchive  = "chromedriver_linux64.zip"
	lastChangeFile = Platform + "/LAST_CHANGE"
)

// File describes how to download and unpack one archive.
type File struct {
	Name string
	URL  string
	// MD5 is the hex digest the download must match.
	MD5 string
	// Rename moves an unpacked path into place, relative to the target
	// directory.
	Rename [2]string
}

// Object is the part of a bucket object's metadata a download needs.
type Object struct {
	MediaLink string
	MD5       []byte
}

// Source reads the snapshot bucket.
type Source interface {
	Read(ctx context.Context, name string) ([]byte, error)
	Attrs(ctx context.Context, name string) (Object, error)
}

// GCS reads the bucket through the Cloud Storage API without credentials.
type GCS struct {
	client *storage.Client
	bkt    *storage.BucketHandle
}

// NewGCS returns a Source for the public snapshot bucket.
func NewGCS(ctx context.Context, opts ...option.ClientOption) (*GCS, error) {
	client, err := storage.NewClient(ctx, append([]option.ClientOption{option.WithoutAuthentication()}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("creating storage client: %w", err)
	}
	return &GCS{client: client, bkt: client.Bucket(Bucket)}, nil
}

func (g *GCS) Read(ctx context.Context, name string) ([]byte, error) {
	r, err := g.bkt.Object(name).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading gs://%s/%s: %w", Bucket, name, err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (g *GCS) Attrs(ctx context.Context, name string) (Object, error) {
	attrs, err := g.bkt.Object(name).Attrs(ctx)
	if err != nil {
		return Object{}, fmt.Errorf("reading attributes of gs://%s/%s: %w", Bucket, name, err)
	}
	return Object{MediaLink: attrs.MediaLink, MD5: attrs.MD5}, nil
}

// Close releases the storage client.
func (g *GCS) Close() error {
	return g.client.Close()
}

// Resolve describes the Chromium and chromedriver archives of revision, or
// of the latest snapshot when revision is empty.
func Resolve(ctx context.Context, src Source, revision string) ([]File, error) {
	if revision == "" {
		data, err := src.Read(ctx, lastChangeFile)
		if err != nil {
			return nil, err
		}
		revision = strings.TrimSpace(string(data))
		if revision == "" {
			return nil, fmt.Errorf("gs://%s/%s is empty", Bucket, lastChangeFile)
		}
	}

	var files []File
	for _, f := range []File{
		{Name: ChromeArchive},
		{Name: DriverArchive, Rename: [2]string{"chromedriver_linux64/chromedriver", "chromedriver"}},
	} {
		obj, err := src.Attrs(ctx, path.Join(Platform, revision, f.Name))
		if err != nil {
			return nil, err
		}
		f.URL = obj.MediaLink
		f.MD5 = hex.EncodeToString(obj.MD5)
		files = append(files, f)
	}
	return files, nil
}

// Downloader stores archives in a directory and unpacks them.
type Downloader struct {
	Dir    string
	Client *http.Client
	log    logrus.FieldLogger
}

// New returns a Downloader writing to dir.
func New(dir string, log logrus.FieldLogger) *Downloader {
	return &Downloader{
		Dir:    dir,
		Client: http.DefaultClient,
		log:    log.WithField("component", "download"),
	}
}

// All downloads every file concurrently and returns the first error.
func (d *Downloader) All(ctx context.Context, files []File) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, file := range files {
		file := file
		g.Go(func() error {
			if err := d.Download(ctx, file); err != nil {
				return fmt.Errorf("%s: %w", file.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Download fetches file unless a copy with the same digest is present, then
// unpacks it.
func (d *Downloader) Download(ctx context.Context, file File) error {
	logger := d.log.WithField("file", file.Name)
	archive := filepath.Join(d.Dir, file.Name)

	if file.MD5 != "" && sameHash(archive, file.MD5) {
		logger.Info("Skipping file which has already been downloaded")
	} else {
		logger.WithField("url", file.URL).Info("Downloading")
		if err := d.fetch(ctx, file, archive); err != nil {
			return err
		}
	}

	logger.Info("Unpacking")
	if err := unzip(archive, d.Dir); err != nil {
		return fmt.Errorf("unpacking %s: %w", archive, err)
	}

	if from, to := file.Rename[0], file.Rename[1]; from != "" && to != "" {
		from, to = filepath.Join(d.Dir, from), filepath.Join(d.Dir, to)
		logger.WithField("to", to).Debug("Renaming")
		if err := os.RemoveAll(to); err != nil {
			return err
		}
		if err := os.Rename(from, to); err != nil {
			return err
		}
	}
	return nil
}

func (d *Downloader) fetch(ctx context.Context, file File, dst string) (err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.URL, nil)
	if err != nil {
		return err
	}
	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("downloading %s: %w", file.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("downloading %s: %s", file.URL, resp.Status)
	}

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing %s: %w", dst, closeErr)
		}
	}()

	h := md5.New()
	if _, err := io.Copy(io.MultiWriter(f, h), resp.Body); err != nil {
		return fmt.Errorf("downloading %s: %w", file.URL, err)
	}
	if file.MD5 != "" {
		if got := hex.EncodeToString(h.Sum(nil)); got != file.MD5 {
			return fmt.Errorf("got md5 %s, want %s", got, file.MD5)
		}
	}
	return nil
}

func sameHash(name, want string) bool {
	f, err := os.Open(name)
	if err != nil {
		return false
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return false
	}
	return hex.EncodeToString(h.Sum(nil)) == want
}

// unzip extracts archive into dir, keeping file modes.
func unzip(archive, dir string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, zf := range r.File {
		if !filepath.IsLocal(zf.Name) {
			return fmt.Errorf("entry %q leaves the target directory", zf.Name)
		}
		target := filepath.Join(dir, zf.Name)
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := extract(zf, target); err != nil {
			return err
		}
	}
	return nil
}

func extract(zf *zip.File, target string) (err error) {
	src, err := zf.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, zf.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := dst.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	_, err = io.Copy(dst, src)
	return err
}
